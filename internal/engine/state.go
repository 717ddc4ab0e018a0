package engine

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/secrets"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
)

// runState is the durable context of one run: the effective variables, the
// trigger input and every finished node's output. It is written back after
// each node so a restarted engine resumes with current data.
type runState struct {
	Variables map[string]any            `json:"variables"`
	Trigger   map[string]any            `json:"trigger,omitempty"`
	Outputs   map[string]map[string]any `json:"outputs,omitempty"`
}

func newRunState(vars, trigger map[string]any) *runState {
	if vars == nil {
		vars = map[string]any{}
	}
	if trigger == nil {
		trigger = map[string]any{}
	}
	return &runState{Variables: vars, Trigger: trigger, Outputs: map[string]map[string]any{}}
}

// encodeState serializes the run state for storage. Declared secrets are
// sealed so they survive a resume; any other value that happens to equal a
// secret is redacted. Plaintext never reaches the database either way.
func encodeState(s *runState, secretNames []string, secretVals []string, box *secrets.Box) (string, error) {
	vars, err := sealNamed(s.Variables, secretNames, box)
	if err != nil {
		return "", err
	}
	trigger, err := sealNamed(s.Trigger, secretNames, box)
	if err != nil {
		return "", err
	}
	stored := runState{
		Variables: secrets.RedactValue(vars, secretVals).(map[string]any),
		Trigger:   secrets.RedactValue(trigger, secretVals).(map[string]any),
	}
	if len(s.Outputs) > 0 {
		stored.Outputs = make(map[string]map[string]any, len(s.Outputs))
		for id, out := range s.Outputs {
			stored.Outputs[id] = secrets.RedactValue(out, secretVals).(map[string]any)
		}
	}
	b, err := codec.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sealNamed copies a map, sealing the values of the named keys. Sealed
// ciphertext no longer matches any plaintext secret, so a later redaction
// pass leaves it alone.
func sealNamed(m map[string]any, secretNames []string, box *secrets.Box) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, name := range secretNames {
		raw, ok := out[name].(string)
		if !ok {
			continue
		}
		sealed, err := box.Seal(raw)
		if err != nil {
			return nil, fmt.Errorf("seal secret %q: %w", name, err)
		}
		out[name] = sealed
	}
	return out, nil
}

// decodeState loads a stored run context and unseals any sealed values. A
// value that no longer opens (key rotation) stays sealed rather than failing
// the whole run.
func decodeState(raw sql.NullString, box *secrets.Box) (*runState, error) {
	s := newRunState(nil, nil)
	if !raw.Valid || raw.String == "" {
		return s, nil
	}
	if err := codec.Unmarshal([]byte(raw.String), s); err != nil {
		return nil, err
	}
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
	if s.Trigger == nil {
		s.Trigger = map[string]any{}
	}
	if s.Outputs == nil {
		s.Outputs = map[string]map[string]any{}
	}
	openSealed(s.Variables, box)
	openSealed(s.Trigger, box)
	return s, nil
}

func openSealed(m map[string]any, box *secrets.Box) {
	for k, v := range m {
		sealed, ok := v.(string)
		if !ok || !secrets.IsSealed(sealed) {
			continue
		}
		plain, err := box.Open(sealed)
		if err != nil {
			slog.Warn("Could not unseal secret value, leaving it sealed", "name", k, "error", err)
			continue
		}
		m[k] = plain
	}
}

// secretValues collects the current plaintext values of declared secrets, for
// redacting persisted node snapshots.
func secretValues(g *definition.Graph, vars map[string]any) []string {
	var vals []string
	for _, name := range g.SecretNames() {
		if s, ok := vars[name].(string); ok && s != "" && !secrets.IsSealed(s) {
			vals = append(vals, s)
		}
	}
	return vals
}

// snapshot renders a node input or output for storage, with secret values
// redacted.
func snapshot(v map[string]any, secretVals []string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := codec.Marshal(secrets.RedactValue(v, secretVals))
	if err != nil {
		slog.Error("Failed to encode node snapshot", "error", err)
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
