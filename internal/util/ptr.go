package util

func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }

func DerefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
