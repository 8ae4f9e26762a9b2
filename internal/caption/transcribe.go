package caption

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Transcriber runs speech-to-text over a downloaded audio file using
// whisper.cpp (spec §4.6 `transcribe`).
type Transcriber struct {
	model whisper.Model
}

// NewTranscriber loads a ggml whisper model from disk.
func NewTranscriber(modelPath string) (*Transcriber, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &Transcriber{model: model}, nil
}

// Close releases the underlying model.
func (t *Transcriber) Close() error {
	return t.model.Close()
}

// Transcribe runs whisper.cpp over a 16kHz mono WAV file, emitting
// fractional progress as segments are produced (spec §4.6).
func (t *Transcriber) Transcribe(audioPath string, onProgress ProgressFunc) (Transcript, error) {
	samples, err := loadWAVSamples(audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("load audio: %w", err)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper context: %w", err)
	}

	var progressCb func(int)
	if onProgress != nil {
		progressCb = func(pct int) { onProgress(float64(pct) / 100.0) }
	}

	if err := wctx.Process(samples, nil, nil, progressCb); err != nil {
		return Transcript{}, fmt.Errorf("whisper process: %w", err)
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		segments = append(segments, Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  seg.Text,
		})
	}

	words, duration := statsFromSegments(segments)
	return Transcript{
		Segments:  segments,
		FullText:  segmentsToFullText(segments),
		Language:  wctx.Language(),
		WordCount: words,
		Duration:  duration,
	}, nil
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// loadWAVSamples reads a PCM WAV file into mono float32 samples in
// [-1, 1], the format whisper.cpp expects.
func loadWAVSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var header wavHeader
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("not a valid wav file")
	}

	data := make([]byte, header.Subchunk2Size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("read wav data: %w", err)
	}

	var samples []float32
	switch header.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(data); i += 2 {
			v := int16(binary.LittleEndian.Uint16(data[i : i+2]))
			samples = append(samples, float32(v)/32768.0)
		}
	case 32:
		for i := 0; i+3 < len(data); i += 4 {
			bits := binary.LittleEndian.Uint32(data[i : i+4])
			samples = append(samples, math.Float32frombits(bits))
		}
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	if header.NumChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}
	return samples, nil
}
