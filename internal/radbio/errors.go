package radbio

import "fmt"

// ModelParameterError reports a mathematically undefined model input, such
// as the EUD exponent a=0 or an LKB volume parameter outside (0,1].
type ModelParameterError struct {
	Model string
	Param string
	Msg   string
}

func (e *ModelParameterError) Error() string {
	return fmt.Sprintf("%s model: parameter %s: %s", e.Model, e.Param, e.Msg)
}
