package procedure

import "fmt"

func init() {
	Register("yyyy", func(...string) (any, error) { return fmt.Sprintf("%04d", Now().Year()), nil })
	Register("yy", func(...string) (any, error) { return fmt.Sprintf("%02d", Now().Year()%100), nil })
	Register("mm", func(...string) (any, error) { return fmt.Sprintf("%02d", int(Now().Month())), nil })
	Register("dd", func(...string) (any, error) { return fmt.Sprintf("%02d", Now().Day()), nil })
	Register("hour", func(...string) (any, error) { return fmt.Sprintf("%02d", Now().Hour()), nil })
	Register("minute", func(...string) (any, error) { return fmt.Sprintf("%02d", Now().Minute()), nil })
	Register("second", func(...string) (any, error) { return fmt.Sprintf("%02d", Now().Second()), nil })
}
