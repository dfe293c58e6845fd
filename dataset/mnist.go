package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MNIST idx file names as distributed on yann.lecun.com.
const (
	trainImagesFile = "train-images-idx3-ubyte.gz"
	trainLabelsFile = "train-labels-idx1-ubyte.gz"
	testImagesFile  = "t10k-images-idx3-ubyte.gz"
	testLabelsFile  = "t10k-labels-idx1-ubyte.gz"

	imagesMagic = 0x00000803
	labelsMagic = 0x00000801
)

// LoadMNIST reads the four gzipped idx files from dir. Pixel intensities are
// scaled to [0, 1].
func LoadMNIST(dir string) (*Data, error) {
	train, err := loadPair(filepath.Join(dir, trainImagesFile), filepath.Join(dir, trainLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("load training set: %w", err)
	}
	test, err := loadPair(filepath.Join(dir, testImagesFile), filepath.Join(dir, testLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("load test set: %w", err)
	}
	return &Data{Train: train, Test: test}, nil
}

func loadPair(imagesPath, labelsPath string) ([]Sample, error) {
	images, err := readImages(imagesPath)
	if err != nil {
		return nil, err
	}
	labels, err := readLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("%d images but %d labels", len(images), len(labels))
	}
	samples := make([]Sample, len(images))
	for i := range samples {
		samples[i] = Sample{Input: images[i], Label: int(labels[i])}
	}
	return samples, nil
}

func openIdx(path string) (io.ReadCloser, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return gz, f, nil
}

func readImages(path string) ([][]float64, error) {
	gz, f, err := openIdx(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer gz.Close()

	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(gz, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if header.Magic != imagesMagic {
		return nil, fmt.Errorf("%s: bad magic 0x%08x", path, header.Magic)
	}

	pixels := int(header.Rows * header.Cols)
	images := make([][]float64, header.Count)
	buf := make([]byte, pixels)
	for i := range images {
		if _, err := io.ReadFull(gz, buf); err != nil {
			return nil, fmt.Errorf("%s: image %d: %w", path, i, err)
		}
		img := make([]float64, pixels)
		for p, v := range buf {
			img[p] = float64(v) / 255
		}
		images[i] = img
	}
	return images, nil
}

func readLabels(path string) ([]byte, error) {
	gz, f, err := openIdx(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer gz.Close()

	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(gz, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if header.Magic != labelsMagic {
		return nil, fmt.Errorf("%s: bad magic 0x%08x", path, header.Magic)
	}

	labels := make([]byte, header.Count)
	if _, err := io.ReadFull(gz, labels); err != nil {
		return nil, fmt.Errorf("%s: read labels: %w", path, err)
	}
	return labels, nil
}
