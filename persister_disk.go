package main

import (
	"os"
	"strings"

	atomicfile "github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OnDiskHostsfilePersister replaces the whole file on every write, so what
// Read returns is always exactly the last rendering.
type OnDiskHostsfilePersister struct {
	path      string
	mustExist bool
}

func NewOnDiskHostsfilePersister(path string) *OnDiskHostsfilePersister {
	return &OnDiskHostsfilePersister{path: path}
}

// Read treats a missing file as an empty one, unless mustExist is set.
func (p *OnDiskHostsfilePersister) Read() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) && !p.mustExist {
			log.Warn().Str("path", p.path).Msg("hosts file does not exist, starting empty")
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (p *OnDiskHostsfilePersister) Write(contents string) error {
	// Temp files are created 0600; hosts files must stay world readable.
	mode := os.FileMode(0644)
	if info, err := os.Stat(p.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := atomicfile.WriteFile(p.path, strings.NewReader(contents)); err != nil {
		return errors.Wrap(err, "atomic write")
	}
	return os.Chmod(p.path, mode)
}

func (p *OnDiskHostsfilePersister) Location() string {
	return p.path
}

// AppendingHostsfileSink adds a rendering to the end of a file. It cannot be
// read back, so it only serves one-shot exports.
type AppendingHostsfileSink struct {
	path string
}

func NewAppendingHostsfileSink(path string) *AppendingHostsfileSink {
	return &AppendingHostsfileSink{path: path}
}

func (s *AppendingHostsfileSink) Write(contents string) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(err, "opening for append")
	}
	if _, err := f.WriteString(contents); err != nil {
		f.Close()
		return errors.Wrap(err, "appending")
	}
	return f.Close()
}

func (s *AppendingHostsfileSink) Location() string {
	return s.path
}
