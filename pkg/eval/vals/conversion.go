package vals

import "fmt"

// ScanToGo converts a value to the type of ptr and stores the result through
// ptr. The supported destination types are string, int, bool and any; they
// cover every parameter type a registered command callback may declare.
func ScanToGo(src any, ptr any) error {
	switch ptr := ptr.(type) {
	case *string:
		*ptr = ToString(src)
		return nil
	case *int:
		i, err := ToInt(src)
		if err != nil {
			return err
		}
		*ptr = i
		return nil
	case *bool:
		b, err := ToBool(src)
		if err != nil {
			return err
		}
		*ptr = b
		return nil
	case *any:
		*ptr = src
		return nil
	default:
		return fmt.Errorf("unsupported destination type %T", ptr)
	}
}
