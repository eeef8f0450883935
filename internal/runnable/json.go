package runnable

import (
	"bytes"
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/tickenc"
)

// MarshalJSON encodes r with tag-in-field unions
// (`{"type":"literal","value":"..."}`), byte fields tick-encoded, and env
// serialized as an ordered object (name -> EnvValue) rather than an array
// of pairs, preserving Env's order.
func (r Runnable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"command":`)
	cmdJSON, err := json.Marshal(r.Command)
	if err != nil {
		return nil, err
	}
	buf.Write(cmdJSON)

	if len(r.Args) > 0 {
		buf.WriteString(`,"args":[`)
		for i, a := range r.Args {
			if i > 0 {
				buf.WriteByte(',')
			}
			aj, err := json.Marshal(a)
			if err != nil {
				return nil, err
			}
			buf.Write(aj)
		}
		buf.WriteByte(']')
	}

	if len(r.Env) > 0 {
		buf.WriteString(`,"env":{`)
		for i, pair := range r.Env {
			if i > 0 {
				buf.WriteByte(',')
			}
			nameJSON, err := json.Marshal(pair.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(nameJSON)
			buf.WriteByte(':')
			valJSON, err := json.Marshal(pair.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(valJSON)
		}
		buf.WriteByte('}')
	}

	buf.WriteString(`,"clearEnv":`)
	if r.ClearEnv {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}

	if len(r.Dependencies) > 0 {
		buf.WriteString(`,"dependencies":[`)
		for i, d := range r.Dependencies {
			if i > 0 {
				buf.WriteByte(',')
			}
			dj, err := json.Marshal(d)
			if err != nil {
				return nil, err
			}
			buf.Write(dj)
		}
		buf.WriteByte(']')
	}

	if r.Source != nil {
		buf.WriteString(`,"source":`)
		sj, err := json.Marshal(*r.Source)
		if err != nil {
			return nil, err
		}
		buf.Write(sj)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Runnable) UnmarshalJSON(data []byte) error {
	var raw struct {
		Command      json.RawMessage            `json:"command"`
		Args         []json.RawMessage          `json:"args"`
		Env          map[string]json.RawMessage `json:"env"`
		EnvOrder     []string                   `json:"-"`
		ClearEnv     bool                       `json:"clearEnv"`
		Dependencies []json.RawMessage          `json:"dependencies"`
		Source       *json.RawMessage           `json:"source"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return xerrors.Errorf("runnable: unmarshal: %w", err)
	}

	envOrder, err := objectKeyOrder(data, "env")
	if err != nil {
		return xerrors.Errorf("runnable: env key order: %w", err)
	}

	if err := json.Unmarshal(raw.Command, &r.Command); err != nil {
		return xerrors.Errorf("runnable: command: %w", err)
	}

	r.Args = make([]ArgValue, len(raw.Args))
	for i, a := range raw.Args {
		if err := json.Unmarshal(a, &r.Args[i]); err != nil {
			return xerrors.Errorf("runnable: args[%d]: %w", i, err)
		}
	}

	r.Env = nil
	for _, name := range envOrder {
		var v EnvValue
		if err := json.Unmarshal(raw.Env[name], &v); err != nil {
			return xerrors.Errorf("runnable: env[%q]: %w", name, err)
		}
		r.Env = append(r.Env, EnvPair{Name: name, Value: v})
	}

	r.ClearEnv = raw.ClearEnv

	r.Dependencies = make([]RunnablePath, len(raw.Dependencies))
	for i, d := range raw.Dependencies {
		if err := json.Unmarshal(d, &r.Dependencies[i]); err != nil {
			return xerrors.Errorf("runnable: dependencies[%d]: %w", i, err)
		}
	}

	if raw.Source != nil {
		var src RunnableSource
		if err := json.Unmarshal(*raw.Source, &src); err != nil {
			return xerrors.Errorf("runnable: source: %w", err)
		}
		r.Source = &src
	} else {
		r.Source = nil
	}

	return nil
}

// objectKeyOrder returns the key order of the JSON object at field in the
// top-level object encoded by data, as it appears on the wire (Go's
// encoding/json discards object key order once unmarshaled into a map).
func objectKeyOrder(data []byte, field string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // top-level '{'
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if key == field {
			return decodeObjectKeys(dec)
		}
		// Skip this field's value.
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func decodeObjectKeys(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, nil // field is null or not an object
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, keyTok.(string))
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return keys, nil
}

func (t Template) MarshalJSON() ([]byte, error) {
	type component struct {
		Type     string `json:"type"`
		Value    string `json:"value,omitempty"`
		Path     string `json:"path,omitempty"`
		Resource string `json:"resource,omitempty"`
	}
	comps := make([]component, len(t.Components))
	for i, c := range t.Components {
		encoded := tickenc.Encode(c.Value)
		switch c.Kind {
		case ComponentLiteral:
			comps[i] = component{Type: "literal", Value: encoded}
		case ComponentRelativePath:
			comps[i] = component{Type: "relative_path", Path: encoded}
		case ComponentResource:
			comps[i] = component{Type: "resource", Resource: encoded}
		}
	}
	return json.Marshal(struct {
		Components []component `json:"components"`
	}{comps})
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var raw struct {
		Components []struct {
			Type     string `json:"type"`
			Value    string `json:"value"`
			Path     string `json:"path"`
			Resource string `json:"resource"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Components = make([]TemplateComponent, len(raw.Components))
	for i, c := range raw.Components {
		var kind TemplateComponentKind
		var encoded string
		switch c.Type {
		case "literal":
			kind, encoded = ComponentLiteral, c.Value
		case "relative_path":
			kind, encoded = ComponentRelativePath, c.Path
		case "resource":
			kind, encoded = ComponentResource, c.Resource
		default:
			return xerrors.Errorf("runnable: unknown template component type %q", c.Type)
		}
		value, err := tickenc.Decode(encoded)
		if err != nil {
			return xerrors.Errorf("runnable: decode template component: %w", err)
		}
		t.Components[i] = TemplateComponent{Kind: kind, Value: value}
	}
	return nil
}

func (a ArgValue) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ArgRest:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{"rest"})
	default:
		return json.Marshal(struct {
			Type  string   `json:"type"`
			Value Template `json:"value"`
		}{"arg", a.Value})
	}
}

func (a *ArgValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string  `json:"type"`
		Value Template `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "rest":
		a.Kind = ArgRest
	case "arg":
		a.Kind = ArgLiteral
		a.Value = raw.Value
	default:
		return xerrors.Errorf("runnable: unknown arg type %q", raw.Type)
	}
	return nil
}

func (e EnvValue) MarshalJSON() ([]byte, error) {
	type withValue struct {
		Type  string   `json:"type"`
		Value Template `json:"value"`
	}
	type withSeparator struct {
		Type      string   `json:"type"`
		Value     Template `json:"value"`
		Separator string   `json:"separator"`
	}
	switch e.Kind {
	case EnvClear:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{"clear"})
	case EnvInherit:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{"inherit"})
	case EnvSet:
		return json.Marshal(withValue{"set", e.Value})
	case EnvFallback:
		return json.Marshal(withValue{"fallback", e.Value})
	case EnvPrepend:
		return json.Marshal(withSeparator{"prepend", e.Value, tickenc.Encode(e.Separator)})
	case EnvAppend:
		return json.Marshal(withSeparator{"append", e.Value, tickenc.Encode(e.Separator)})
	default:
		return nil, xerrors.Errorf("runnable: unknown env kind %d", e.Kind)
	}
}

func (e *EnvValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string   `json:"type"`
		Value     Template `json:"value"`
		Separator string   `json:"separator"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "clear":
		e.Kind = EnvClear
	case "inherit":
		e.Kind = EnvInherit
	case "set":
		e.Kind, e.Value = EnvSet, raw.Value
	case "fallback":
		e.Kind, e.Value = EnvFallback, raw.Value
	case "prepend", "append":
		if raw.Type == "prepend" {
			e.Kind = EnvPrepend
		} else {
			e.Kind = EnvAppend
		}
		e.Value = raw.Value
		sep, err := tickenc.Decode(raw.Separator)
		if err != nil {
			return xerrors.Errorf("runnable: decode env separator: %w", err)
		}
		e.Separator = sep
	default:
		return xerrors.Errorf("runnable: unknown env type %q", raw.Type)
	}
	return nil
}

func (p RunnablePath) MarshalJSON() ([]byte, error) {
	encoded := tickenc.Encode(p.Value)
	switch p.Kind {
	case RunnablePathRelative:
		return json.Marshal(struct {
			Type string `json:"type"`
			Path string `json:"path"`
		}{"relative_path", encoded})
	default:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Resource string `json:"resource"`
		}{"resource", encoded})
	}
}

func (p *RunnablePath) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string `json:"type"`
		Path     string `json:"path"`
		Resource string `json:"resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var kind RunnablePathKind
	var encoded string
	switch raw.Type {
	case "relative_path":
		kind, encoded = RunnablePathRelative, raw.Path
	case "resource":
		kind, encoded = RunnablePathResource, raw.Resource
	default:
		return xerrors.Errorf("runnable: unknown runnable path type %q", raw.Type)
	}
	value, err := tickenc.Decode(encoded)
	if err != nil {
		return xerrors.Errorf("runnable: decode runnable path: %w", err)
	}
	p.Kind, p.Value = kind, value
	return nil
}
