package persistence_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andrej220/routerconfig/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = "{\n    \"key\": \"value\"\n}"

type MockSerializer struct {
	Bytes []byte
	Err   error
}

func (s MockSerializer) Marshal(data any) ([]byte, error) {
	return s.Bytes, s.Err
}

type MockWriter struct {
	Data map[string][]byte
	Err  error
}

func (w *MockWriter) Write(filename string, data []byte) error {
	if w.Data == nil {
		w.Data = make(map[string][]byte)
	}
	w.Data[filename] = data
	return w.Err
}

func TestWriteJSONToFile(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		serializer  persistence.Serializer
		writer      persistence.Writer
		expectedErr bool
	}{
		{
			name:       "valid input",
			filename:   filepath.Join(t.TempDir(), "output.json"),
			serializer: MockSerializer{Bytes: []byte(sampleJSON)},
			writer:     &MockWriter{},
		},
		{
			name:        "empty filename",
			filename:    "",
			serializer:  MockSerializer{Bytes: []byte(sampleJSON)},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "serializer error",
			filename:    "test.json",
			serializer:  MockSerializer{Err: errors.New("serialization failed")},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "writer error",
			filename:    "test.json",
			serializer:  MockSerializer{Bytes: []byte(sampleJSON)},
			writer:      &MockWriter{Err: errors.New("write failed")},
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := persistence.WriteJSONToFile(map[string]string{"key": "value"}, tt.filename, tt.serializer, tt.writer)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if writer, ok := tt.writer.(*MockWriter); ok {
				assert.Equal(t, sampleJSON, string(writer.Data[tt.filename]))
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "output.json")

	require.NoError(t, persistence.WriteJSON(map[string]string{"key": "value"}, filename))
	require.NoError(t, persistence.WriteJSON(map[string]string{"key": "value"}, filename))

	got, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(got))
}

func TestFileWriterRefusesOverwrite(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "output.json")
	require.NoError(t, os.WriteFile(filename, []byte("old"), 0644))

	err := persistence.FileWriter{}.Write(filename, []byte("new"))
	assert.ErrorIs(t, err, os.ErrExist)

	got, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
