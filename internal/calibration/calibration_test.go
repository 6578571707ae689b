package calibration

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/fsutil"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/step"
)

const imagePath = "/var/lib/dealr/calibration.bin"

func newFileStore(t *testing.T) (*Store, *fsutil.MemoryFileSystem) {
	t.Helper()
	mem := fsutil.NewMemoryFileSystem()
	s, err := Open(NewFileBackend(mem, imagePath))
	require.NoError(t, err)
	return s, mem
}

func TestEncodeLayout(t *testing.T) {
	rec := Record{
		Version:   FormatVersion,
		Table:     ColorTable{{R: 0x0102, G: 3, B: 4, AvgC: 0xFFEE}},
		Threshold: 0x0A0B,
	}
	got := Encode(rec)
	want := []byte{FormatVersion, 0x02, 0x01, 3, 0, 4, 0, 0xEE, 0xFF, 0x0B, 0x0A}
	assert.Equal(t, want, got)
	assert.Len(t, Encode(DefaultRecord()), ImageSize(NumIdentities))
	assert.Equal(t, 75, ImageSize(NumIdentities))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil, NumIdentities)
	assert.ErrorIs(t, err, ErrShortImage)

	img := Encode(DefaultRecord())
	img[0] = FormatVersion + 1
	_, err = Decode(img, NumIdentities)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = Decode(Encode(DefaultRecord())[:40], NumIdentities)
	assert.ErrorIs(t, err, ErrShortImage)
}

func TestOpenSeedsDefaults(t *testing.T) {
	s, mem := newFileStore(t)

	if diff := cmp.Diff(DefaultTable(), s.Table()); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, DefaultThreshold, s.Threshold())

	stored, err := mem.ReadFile(imagePath)
	require.NoError(t, err)
	assert.Equal(t, Encode(DefaultRecord()), stored)
}

func TestVersionMismatchRestoresDefaults(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	rec := DefaultRecord()
	rec.Version = FormatVersion + 7
	rec.Table[3] = Centroid{1, 2, 3, 4}
	rec.Threshold = 9
	require.NoError(t, mem.WriteFile(imagePath, Encode(rec), 0o644))

	s, err := Open(NewFileBackend(mem, imagePath))
	require.NoError(t, err)

	assert.Equal(t, DefaultTable(), s.Table())
	assert.Equal(t, DefaultThreshold, s.Threshold())
	stored, _ := mem.ReadFile(imagePath)
	assert.Equal(t, FormatVersion, stored[0])
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	s, mem := newFileStore(t)
	tuned := Centroid{R: 130, G: 98, B: 27, AvgC: 301}
	require.NoError(t, s.SetCentroid(2, tuned))
	require.NoError(t, s.SetThreshold(712))

	before, err := mem.ReadFile(imagePath)
	require.NoError(t, err)

	// Simulated reboot.
	s2, err := Open(NewFileBackend(mem, imagePath))
	require.NoError(t, err)
	assert.Equal(t, tuned, s2.Centroid(2))
	assert.Equal(t, uint16(712), s2.Threshold())

	after, err := mem.ReadFile(imagePath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "image changed across reboot")
	assert.Equal(t, before, Encode(Record{Version: FormatVersion, Table: s2.Table(), Threshold: s2.Threshold()}))
}

func TestFailedSaveKeepsMemoryUnchanged(t *testing.T) {
	s, mem := newFileStore(t)
	mem.WriteErr = errors.New("disk full")

	err := s.SetCentroid(4, Centroid{1, 1, 1, 1})
	require.Error(t, err)
	assert.Equal(t, DefaultTable()[4], s.Centroid(4))

	assert.Error(t, s.SetCentroid(NumIdentities, Centroid{}))
}

func TestIdentityName(t *testing.T) {
	assert.Equal(t, "BLAK", Background.Name())
	assert.Equal(t, "RED ", Reference.Name())
	assert.Equal(t, "DBLU", Identity(8).Name())
	assert.Len(t, Identity(42).Name(), 4)
}

func TestColorTunerPersistsEachIdentity(t *testing.T) {
	s, _ := newFileStore(t)
	tuner := NewColorTuner(s, 4)

	// Raw readings twice the proportions; normalisation must undo that.
	sample := hal.ColorSample{R: 100, G: 300, B: 110, C: 140}
	for id := Background; int(id) < NumIdentities; id++ {
		require.True(t, tuner.Awaiting())
		require.Equal(t, id, tuner.Current())

		// Nothing is sampled before confirmation.
		st, err := tuner.Step(sample)
		require.NoError(t, err)
		require.Equal(t, step.Working, st)

		tuner.Confirm()
		for i := 0; i < 4; i++ {
			st, err = tuner.Step(sample)
			require.NoError(t, err)
		}
		if int(id) == NumIdentities-1 {
			assert.Equal(t, step.Done, st)
		} else {
			assert.Equal(t, step.Working, st)
		}
	}

	want := Centroid{R: 50, G: 150, B: 55, AvgC: 140}
	for id := 0; id < NumIdentities; id++ {
		assert.Equal(t, want, s.Centroid(Identity(id)), "identity %d", id)
	}
}

func TestColorTunerCancelDiscardsIdentityInProgress(t *testing.T) {
	s, mem := newFileStore(t)
	tuner := NewColorTuner(s, 3)

	tuner.Confirm()
	for i := 0; i < 3; i++ {
		tuner.Step(hal.ColorSample{R: 10, G: 10, B: 10, C: 10})
	}
	require.Equal(t, Identity(1), tuner.Current())
	afterFirst, _ := mem.ReadFile(imagePath)

	tuner.Confirm()
	tuner.Step(hal.ColorSample{R: 90, G: 5, B: 5, C: 400})
	tuner.Cancel()

	st, err := tuner.Step(hal.ColorSample{})
	assert.Equal(t, step.Failed, st)
	assert.ErrorIs(t, err, ErrCancelled)

	stored, _ := mem.ReadFile(imagePath)
	assert.Equal(t, afterFirst, stored)
	assert.Equal(t, DefaultTable()[1], s.Centroid(1))
	assert.Equal(t, Centroid{R: 85, G: 85, B: 85, AvgC: 10}, s.Centroid(0))
}

func TestThresholdTuner(t *testing.T) {
	s, _ := newFileStore(t)
	tuner := NewThresholdTuner(s, 5, 20)

	readings := [][]uint16{{10, 240, 30}, {12, 180}, {300, 11}, {50}, {90, 100}}
	for _, card := range readings {
		st, err := tuner.Step()
		require.NoError(t, err)
		require.Equal(t, step.Working, st)
		for _, v := range card {
			tuner.Observe(v)
		}
		tuner.CardDealt()
	}
	assert.Equal(t, 0, tuner.Remaining())

	st, err := tuner.Step()
	require.NoError(t, err)
	assert.Equal(t, step.Done, st)
	assert.Equal(t, uint16(320), tuner.Result())
	assert.Equal(t, uint16(320), s.Threshold())
}

func TestThresholdTunerCancel(t *testing.T) {
	s, _ := newFileStore(t)
	tuner := NewThresholdTuner(s, 5, 20)
	tuner.Observe(900)
	tuner.CardDealt()
	tuner.Cancel()

	st, err := tuner.Step()
	assert.Equal(t, step.Failed, st)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, DefaultThreshold, s.Threshold())
}
