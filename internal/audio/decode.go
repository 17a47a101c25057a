package audio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/mp3"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// mp3ChunkFrames is the number of stereo frames pulled per Stream call.
const mp3ChunkFrames = 4096

// MaxFileSize caps the size of a clip on disk.
const MaxFileSize = 100 << 20

// Format names a supported audio container.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

// codec recognizes one container by its leading bytes or, failing that,
// its extension, and decodes it.
type codec struct {
	format Format
	ext    string
	sniff  func(head []byte) bool
	decode func(path string) (Source, error)
}

var codecs = []codec{
	{
		format: FormatWAV,
		ext:    ".wav",
		sniff: func(head []byte) bool {
			return len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WAVE"
		},
		decode: func(path string) (Source, error) {
			pcm, err := decodeWAV(path)
			if err != nil {
				return nil, err
			}
			return pcm, nil
		},
	},
	{
		format: FormatMP3,
		ext:    ".mp3",
		sniff: func(head []byte) bool {
			// ID3v2 tag or a bare MPEG frame sync.
			return string(head[:3]) == "ID3" || (head[0] == 0xFF && head[1]&0xE0 == 0xE0)
		},
		decode: func(path string) (Source, error) {
			buf, err := decodeMP3(path)
			if err != nil {
				return nil, err
			}
			return buf, nil
		},
	},
}

// Load validates and decodes an audio file. WAV yields integer PCM, MP3 a
// stereo float buffer.
func Load(path string) (Source, error) {
	c, err := lookupCodec(path)
	if err != nil {
		return nil, err
	}
	return c.decode(path)
}

// ValidateInput reports the container of the clip at path without decoding
// it. An empty path is ErrNoInput.
func ValidateInput(path string) (Format, error) {
	c, err := lookupCodec(path)
	if err != nil {
		return FormatUnknown, err
	}
	return c.format, nil
}

func lookupCodec(path string) (codec, error) {
	if path == "" {
		return codec{}, apperrors.ErrNoInput
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return codec{}, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
	case err != nil:
		return codec{}, fmt.Errorf("stat clip: %w", err)
	case info.IsDir():
		return codec{}, fmt.Errorf("%w: %s is a directory", apperrors.ErrUnsupportedFormat, path)
	case info.Size() > MaxFileSize:
		return codec{}, fmt.Errorf("%w: clip is %d bytes, limit %d", apperrors.ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	head, err := readHead(path, 12)
	if err != nil {
		return codec{}, err
	}
	for _, c := range codecs {
		if c.sniff(head) {
			return c, nil
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range codecs {
		if c.ext == ext {
			return c, nil
		}
	}
	return codec{}, fmt.Errorf("%w: expected a WAV or MP3 clip", apperrors.ErrUnsupportedFormat)
}

// readHead returns up to n leading bytes of the file; fewer than four is a
// corrupted clip.
func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
	}
	defer f.Close()

	head := make([]byte, n)
	got, err := io.ReadAtLeast(f, head, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read header", apperrors.ErrCorruptedFile)
	}
	return head[:got], nil
}

func decodeWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV header", apperrors.ErrCorruptedFile)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode wav: %v", apperrors.ErrCorruptedFile, err)
	}

	pcm := &PCM{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Data:       buf.Data,
	}

	// 8-bit WAV is unsigned; shift it around zero like every other depth.
	if pcm.BitDepth == 8 {
		for i, v := range pcm.Data {
			pcm.Data[i] = v - 128
		}
	}
	return pcm, nil
}

func decodeMP3(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: decode mp3: %v", apperrors.ErrCorruptedFile, err)
	}
	defer streamer.Close()

	chunk := make([][2]float64, mp3ChunkFrames)
	samples := make([]float64, 0, streamer.Len()*2)
	for {
		n, ok := streamer.Stream(chunk)
		for _, frame := range chunk[:n] {
			samples = append(samples, frame[0], frame[1])
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: decode mp3: %v", apperrors.ErrCorruptedFile, err)
	}

	return &Buffer{
		SampleRate: int(format.SampleRate),
		Channels:   2,
		Samples:    samples,
	}, nil
}

// WriteWAV encodes buf as integer PCM at the given bit depth.
func WriteWAV(path string, buf *Buffer, bitDepth int) error {
	if buf == nil {
		return apperrors.ErrNoInput
	}
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return fmt.Errorf("%w: unsupported bit depth %d", apperrors.ErrInvalidAudio, bitDepth)
	}
	if err := validateLayout(buf.SampleRate, buf.Channels, len(buf.Samples)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	peak := float64(int64(1)<<(bitDepth-1)) - 1
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * peak))
	}

	enc := wav.NewEncoder(f, buf.SampleRate, bitDepth, buf.Channels, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
