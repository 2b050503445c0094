package output

import (
	"encoding/json"
	"io"

	"go.yaml.in/yaml/v3"
)

// YAMLFormatter formats data as YAML. Keys follow the json tags so that
// both formats name fields alike.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
