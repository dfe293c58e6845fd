package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func gzipIdx(t *testing.T, path string, write func(*bytes.Buffer)) {
	t.Helper()
	var raw bytes.Buffer
	write(&raw)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeImages(t *testing.T, path string, rows, cols int, images [][]byte) {
	gzipIdx(t, path, func(b *bytes.Buffer) {
		binary.Write(b, binary.BigEndian, uint32(imagesMagic))
		binary.Write(b, binary.BigEndian, uint32(len(images)))
		binary.Write(b, binary.BigEndian, uint32(rows))
		binary.Write(b, binary.BigEndian, uint32(cols))
		for _, img := range images {
			b.Write(img)
		}
	})
}

func writeLabels(t *testing.T, path string, labels []byte) {
	gzipIdx(t, path, func(b *bytes.Buffer) {
		binary.Write(b, binary.BigEndian, uint32(labelsMagic))
		binary.Write(b, binary.BigEndian, uint32(len(labels)))
		b.Write(labels)
	})
}

func TestLoadMNIST(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, filepath.Join(dir, trainImagesFile), 2, 2, [][]byte{
		{0, 51, 102, 255},
		{255, 204, 153, 0},
	})
	writeLabels(t, filepath.Join(dir, trainLabelsFile), []byte{3, 7})
	writeImages(t, filepath.Join(dir, testImagesFile), 2, 2, [][]byte{
		{10, 20, 30, 40},
	})
	writeLabels(t, filepath.Join(dir, testLabelsFile), []byte{9})

	data, err := LoadMNIST(dir)
	require.NoError(t, err)
	require.Len(t, data.Train, 2)
	require.Len(t, data.Test, 1)

	require.Equal(t, 3, data.Train[0].Label)
	require.Equal(t, 7, data.Train[1].Label)
	require.Len(t, data.Train[0].Input, 4)
	require.InDelta(t, 0.0, data.Train[0].Input[0], 1e-12)
	require.InDelta(t, 51.0/255, data.Train[0].Input[1], 1e-12)
	require.InDelta(t, 1.0, data.Train[0].Input[3], 1e-12)
	require.Equal(t, 9, data.Test[0].Label)
}

func TestLoadMNISTMissingFiles(t *testing.T) {
	_, err := LoadMNIST(t.TempDir())
	require.Error(t, err)
}

func TestLoadMNISTBadMagic(t *testing.T) {
	dir := t.TempDir()
	gzipIdx(t, filepath.Join(dir, trainImagesFile), func(b *bytes.Buffer) {
		binary.Write(b, binary.BigEndian, uint32(0xdeadbeef))
		binary.Write(b, binary.BigEndian, uint32(0))
		binary.Write(b, binary.BigEndian, uint32(0))
		binary.Write(b, binary.BigEndian, uint32(0))
	})
	writeLabels(t, filepath.Join(dir, trainLabelsFile), nil)
	_, err := LoadMNIST(dir)
	require.ErrorContains(t, err, "bad magic")
}

func TestLoadMNISTCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, filepath.Join(dir, trainImagesFile), 1, 1, [][]byte{{1}, {2}})
	writeLabels(t, filepath.Join(dir, trainLabelsFile), []byte{0})
	_, err := LoadMNIST(dir)
	require.ErrorContains(t, err, "labels")
}

func TestSynthetic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := Synthetic(30, 6, 3, rng)
	require.Len(t, samples, 30)
	for _, s := range samples {
		require.Len(t, s.Input, 6)
		require.GreaterOrEqual(t, s.Label, 0)
		require.Less(t, s.Label, 3)
		for _, v := range s.Input {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}

	again := Synthetic(30, 6, 3, rand.New(rand.NewSource(1)))
	require.Equal(t, samples, again, "same seed, same set")
}
