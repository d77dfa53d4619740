// Package catalog holds the user facing log messages. Messages are loaded
// once at startup from a flat key to format string file and passed to the
// components that log them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

type Key string

const (
	ServerStart              Key = "server_start_message"
	ServerStop               Key = "server_stop_message"
	StartDirectoryScanning   Key = "start_directory_scanning"
	FileAlreadyExistsInStore Key = "file_already_exists_in_db"
	FileNotExistsInStore     Key = "file_not_exists_in_db"
	FileHashHasChanged       Key = "file_hash_has_changed"
	FileNotExistsInBackup    Key = "file_not_exists_in_backup_directory"
	FileRemoved              Key = "file_removed"
)

// Keys lists every message a catalog must define.
var Keys = []Key{
	ServerStart,
	ServerStop,
	StartDirectoryScanning,
	FileAlreadyExistsInStore,
	FileNotExistsInStore,
	FileHashHasChanged,
	FileNotExistsInBackup,
	FileRemoved,
}

var ErrMissingKeys = errors.New("catalog is missing keys")

//go:embed lang.en.json
var defaultCatalog []byte

type Catalog struct {
	messages map[Key]string
}

// Default returns the embedded English catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, ".json")
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. .yaml and .yml files are YAML, anything else JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog in the format named by ext and checks that every key in Keys is present.
func Parse(data []byte, ext string) (*Catalog, error) {
	raw := map[string]string{}
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	messages := make(map[Key]string, len(raw))
	for k, v := range raw {
		messages[Key(k)] = v
	}

	var missing []string
	for _, key := range Keys {
		if _, ok := messages[key]; !ok {
			missing = append(missing, string(key))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", "))
	}

	return &Catalog{messages: messages}, nil
}

// Get formats the message for key. args are name/value pairs filling the
// {name} placeholders of the message; {{ and }} produce literal braces and
// placeholders without a value are kept verbatim. An unknown key returns the
// key itself.
func (c *Catalog) Get(key Key, args ...any) string {
	format, ok := c.messages[key]
	if !ok {
		return string(key)
	}
	return expand(format, pairs(args))
}

func pairs(args []any) map[string]string {
	values := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		values[fmt.Sprint(args[i])] = fmt.Sprint(args[i+1])
	}
	return values
}

func expand(format string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(format))

	for i := 0; i < len(format); i++ {
		ch := format[i]
		switch {
		case ch == '{' && i+1 < len(format) && format[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(format) && format[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				b.WriteString(format[i:])
				return b.String()
			}
			name := format[i+1 : i+1+end]
			if v, ok := values[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(format[i : i+2+end])
			}
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
