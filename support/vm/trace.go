package vm

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

//
// Message trace output
//

// TraceRecord is one applied top-level message and the state root it left behind.
type TraceRecord struct {
	Seq       uint64 `yaml:"seq"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Method    uint64 `yaml:"method"`
	Value     string `yaml:"value"`
	ExitCode  int64  `yaml:"exit_code"`
	StateRoot string `yaml:"state_root"`
}

// traceWriter appends one YAML document per applied message to trace.yaml in its directory.
// A nil traceWriter records nothing.
type traceWriter struct {
	file *os.File
	enc  *yaml.Encoder
}

const traceFileName = "trace.yaml"

func newTraceWriter(dir string) (*traceWriter, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Errorf("failed to create trace dir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, traceFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, xerrors.Errorf("failed to open trace file: %w", err)
	}
	return &traceWriter{file: f, enc: yaml.NewEncoder(f)}, nil
}

func (t *traceWriter) record(seq uint64, msg InternalMessage, code exitcode.ExitCode, root cid.Cid) error {
	if t == nil {
		return nil
	}
	rec := TraceRecord{
		Seq:       seq,
		From:      msg.from.String(),
		To:        msg.to.String(),
		Method:    uint64(msg.method),
		Value:     msg.value.String(),
		ExitCode:  int64(code),
		StateRoot: root.String(),
	}
	if err := t.enc.Encode(&rec); err != nil {
		return xerrors.Errorf("failed to write trace record %d: %w", seq, err)
	}
	return nil
}

func (t *traceWriter) close() error {
	if t == nil {
		return nil
	}
	if err := t.enc.Close(); err != nil {
		return err
	}
	return t.file.Close()
}

// ReadTrace decodes every record of the trace written to dir.
func ReadTrace(dir string) ([]TraceRecord, error) {
	f, err := os.Open(filepath.Join(dir, traceFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var records []TraceRecord
	dec := yaml.NewDecoder(f)
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, xerrors.Errorf("failed to decode trace: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
