// ABOUTME: Canonical schema fingerprinting for drift detection
// ABOUTME: Hashes property name/type pairs and required lists, flags risky shapes

package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/2389/warden-gateway/internal/tools"
)

// Snapshot is the recorded shape of a tool's input schema at one point
// in time. Two schemas with the same properties, types, and required
// list produce the same hash regardless of key order in the JSON.
type Snapshot struct {
	ToolName           string    `json:"tool_name"`
	SchemaHash         string    `json:"schema_hash"`
	ParamCount         int       `json:"param_count"`
	RequiredParamCount int       `json:"required_param_count"`
	HasSystemAccess    bool      `json:"has_system_access"`
	HasFileInputs      bool      `json:"has_file_inputs"`
	Timestamp          time.Time `json:"timestamp"`

	properties map[string]property
	required   map[string]struct{}
}

// property is one schema parameter as far as drift detection cares.
type property struct {
	Type     string
	Required bool
}

// systemAccessNames mark parameters that suggest the tool can reach the
// host: commands, shells, code execution.
var systemAccessNames = []string{"command", "cmd", "exec", "shell", "script", "eval", "code"}

// fileInputNames mark parameters that carry filesystem paths.
var fileInputNames = []string{"path", "file", "filename", "filepath", "dir", "directory"}

// rawSchema is the subset of a JSON schema the fingerprint reads.
type rawSchema struct {
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// Fingerprint computes the drift snapshot for a tool descriptor. An
// unparseable schema yields an empty-shape snapshot rather than an
// error; the hash still changes if the schema later becomes readable.
func Fingerprint(desc tools.Descriptor) Snapshot {
	var schema rawSchema
	_ = json.Unmarshal(desc.InputSchema, &schema)

	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}

	snap := Snapshot{
		ToolName:           desc.Name,
		ParamCount:         len(schema.Properties),
		RequiredParamCount: len(required),
		Timestamp:          time.Now(),
		properties:         make(map[string]property, len(schema.Properties)),
		required:           required,
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	h := sha256.New()
	for _, name := range names {
		typ := schema.Properties[name].Type
		_, req := required[name]
		snap.properties[name] = property{Type: typ, Required: req}

		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(typ))
		h.Write([]byte{0})

		if matchesAny(name, systemAccessNames) {
			snap.HasSystemAccess = true
		}
		if matchesAny(name, fileInputNames) {
			snap.HasFileInputs = true
		}
	}

	reqNames := make([]string, 0, len(required))
	for name := range required {
		reqNames = append(reqNames, name)
	}
	slices.Sort(reqNames)
	for _, name := range reqNames {
		h.Write([]byte("!"))
		h.Write([]byte(name))
		h.Write([]byte{0})
	}

	snap.SchemaHash = hex.EncodeToString(h.Sum(nil))
	return snap
}

func matchesAny(name string, needles []string) bool {
	lower := strings.ToLower(name)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
