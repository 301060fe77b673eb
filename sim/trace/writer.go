package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Header is the first line of a written trace.
type Header struct {
	RunID string     `json:"run_id"`
	Level TraceLevel `json:"level"`
	Seed  int64      `json:"seed"`
}

// line is one JSONL entry; exactly one payload field is set.
type line struct {
	Header *Header      `json:"header,omitempty"`
	Tick   *TickRecord  `json:"tick,omitempty"`
	Group  *GroupRecord `json:"group,omitempty"`
	Fall   *FallRecord  `json:"fall,omitempty"`
}

// Writer streams a SimulationTrace as zstd-compressed JSON lines.
type Writer struct {
	enc   *zstd.Encoder
	w     *bufio.Writer
	runID uuid.UUID
}

// NewWriter starts a trace on out and writes the header. The caller owns out.
func NewWriter(out io.Writer, level TraceLevel, seed int64) (*Writer, error) {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	tw := &Writer{
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 128*1024),
		runID: uuid.New(),
	}
	if err := tw.write(line{Header: &Header{RunID: tw.runID.String(), Level: level, Seed: seed}}); err != nil {
		_ = enc.Close()
		return nil, err
	}
	return tw, nil
}

// RunID identifies this trace.
func (tw *Writer) RunID() uuid.UUID {
	return tw.runID
}

// WriteTrace appends every record of st: ticks, then group transitions, then falls.
func (tw *Writer) WriteTrace(st *SimulationTrace) error {
	for i := range st.Ticks {
		if err := tw.write(line{Tick: &st.Ticks[i]}); err != nil {
			return err
		}
	}
	for i := range st.Groups {
		if err := tw.write(line{Group: &st.Groups[i]}); err != nil {
			return err
		}
	}
	for i := range st.Falls {
		if err := tw.write(line{Fall: &st.Falls[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (tw *Writer) write(l line) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if _, err := tw.w.Write(b); err != nil {
		return err
	}
	return tw.w.WriteByte('\n')
}

// Close flushes buffered lines and finishes the zstd frame.
func (tw *Writer) Close() error {
	flushErr := tw.w.Flush()
	return errors.Join(flushErr, tw.enc.Close())
}

// ReadTrace decodes a trace produced by Writer.
func ReadTrace(in io.Reader) (Header, *SimulationTrace, error) {
	dec, err := zstd.NewReader(in)
	if err != nil {
		return Header{}, nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	var header Header
	st := NewSimulationTrace(TraceConfig{})
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		var l line
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			return Header{}, nil, fmt.Errorf("trace line %d: %w", n, err)
		}
		switch {
		case l.Header != nil:
			header = *l.Header
			st.Config.Level = header.Level
		case l.Tick != nil:
			st.Ticks = append(st.Ticks, *l.Tick)
		case l.Group != nil:
			st.Groups = append(st.Groups, *l.Group)
		case l.Fall != nil:
			st.Falls = append(st.Falls, *l.Fall)
		default:
			return Header{}, nil, fmt.Errorf("trace line %d: empty record", n)
		}
	}
	if err := scanner.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("reading trace: %w", err)
	}
	if header.RunID == "" {
		return Header{}, nil, errors.New("trace has no header")
	}
	return header, st, nil
}
