package template

import "fmt"

// VarNotFoundError is returned when a {name} reference has no value.
type VarNotFoundError struct {
	Name     string
	Template string
}

func (e *VarNotFoundError) Error() string {
	return fmt.Sprintf("template %q: variable %q not found", e.Template, e.Name)
}

// ProcedureNotFoundError is returned when a call names an unregistered procedure.
type ProcedureNotFoundError struct {
	Name     string
	Template string
}

func (e *ProcedureNotFoundError) Error() string {
	return fmt.Sprintf("template %q: procedure %q is not registered", e.Template, e.Name)
}

// RequiredPathNotFoundError is returned when a "!segment" path does not exist.
type RequiredPathNotFoundError struct {
	Segment  string
	Path     string
	Template string
}

func (e *RequiredPathNotFoundError) Error() string {
	return fmt.Sprintf("template %q: required path %s not found: %s", e.Template, e.Segment, e.Path)
}
