// Package fixtures provides test data builders and helpers.
package fixtures

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// Int32Ptr returns a pointer to the given int32.
func Int32Ptr(i int32) *int32 {
	return &i
}
