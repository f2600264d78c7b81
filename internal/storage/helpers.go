package storage

import "time"

// NullableString maps empty strings to NULL for insert parameters.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableInt maps nil pointers to NULL for insert parameters.
func NullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

// NullableTime maps nil pointers to NULL for insert parameters.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// FormatTime renders a timestamp in the canonical stored form.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a stored timestamp, tolerating second precision.
func ParseTime(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, value)
}
