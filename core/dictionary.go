package core

import (
	"sort"
	"sync"

	"vrtt/protocol"
	"vrtt/tinycompress"
)

// Dictionary is the data dictionary the host retrieves with identify: a
// zlib-compressed JSON object naming every command, response and constant.
type Dictionary struct {
	mu            sync.Mutex
	registry      *CommandRegistry
	constants     map[string]string
	version       string
	buildVersions string

	cached      []byte
	cachedCount int // registry size when cached was built
}

// NewDictionary creates a dictionary over registry
func NewDictionary(registry *CommandRegistry) *Dictionary {
	return &Dictionary{
		registry:      registry,
		constants:     make(map[string]string),
		version:       protocol.Version,
		buildVersions: "go-tinygo",
	}
}

// AddConstant adds a string constant
func (d *Dictionary) AddConstant(name string, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.cached = nil
}

// AddConstantUint adds a numeric constant
func (d *Dictionary) AddConstantUint(name string, value uint32) {
	d.AddConstant(name, Utoa(value))
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cached = nil
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
}

// Data returns the compressed dictionary, rebuilding it when the registry
// or the constants changed since the last call.
func (d *Dictionary) Data() []byte {
	// Read the registry before taking the dictionary lock
	commands := d.registry.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil || d.cachedCount != len(commands) {
		json := d.buildJSONLocked(commands)
		d.cached = tinycompress.Compress(json)
		d.cachedCount = len(commands)
		DebugPrintln("[DICT] built " + Utoa(uint32(len(json))) + " bytes, compressed " + Utoa(uint32(len(d.cached))))
	}
	return d.cached
}

// JSON returns the uncompressed dictionary
func (d *Dictionary) JSON() []byte {
	commands := d.registry.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buildJSONLocked(commands)
}

// Chunk returns a copy of at most count bytes of Data starting at offset.
// It is empty past the end.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Data()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// buildJSONLocked writes the dictionary object. Caller holds d.mu.
func (d *Dictionary) buildJSONLocked(commands []*Command) []byte {
	result := make([]byte, 0, 512)

	result = append(result, `{"version":`...)
	result = appendJSONString(result, d.version)
	result = append(result, `,"build_versions":`...)
	result = appendJSONString(result, d.buildVersions)

	result = append(result, `,"config":{`...)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendJSONString(result, name)
		result = append(result, ':')
		result = appendJSONString(result, d.constants[name])
	}

	result = append(result, `},"commands":{`...)
	result = appendEntries(result, commands, false)
	result = append(result, `},"responses":{`...)
	result = appendEntries(result, commands, true)
	result = append(result, "}}"...)
	return result
}

// appendEntries writes "signature":id pairs in ID order
func appendEntries(result []byte, commands []*Command, responses bool) []byte {
	first := true
	for _, cmd := range commands {
		if cmd.IsResponse() != responses {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		first = false
		result = appendJSONString(result, cmd.Signature())
		result = append(result, ':')
		result = append(result, Utoa(uint32(cmd.ID))...)
	}
	return result
}

func appendJSONString(result []byte, s string) []byte {
	result = append(result, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			result = append(result, '\\', c)
		case c < 0x20:
			result = append(result, `\u00`...)
			result = append(result, hexDigit(c>>4), hexDigit(c&0xF))
		default:
			result = append(result, c)
		}
	}
	return append(result, '"')
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + n - 10
}
