package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingOperator captures sync and concat calls and fabricates
// their outputs.
type recordingOperator struct {
	syncCalls   []syncCall
	concatClips []string
	syncErrOn   int
	emptyFinal  bool
}

type syncCall struct {
	video, audio, output string
	target               time.Duration
}

func (r *recordingOperator) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	return 0, nil
}

func (r *recordingOperator) ConvertToWAV(ctx context.Context, src, dst string) error {
	return nil
}

func (r *recordingOperator) FitVideoToAudio(ctx context.Context, videoPath, audioPath, outputPath string, target time.Duration) error {
	if r.syncErrOn > 0 && len(r.syncCalls)+1 == r.syncErrOn {
		return fmt.Errorf("ffmpeg exit 1")
	}
	r.syncCalls = append(r.syncCalls, syncCall{videoPath, audioPath, outputPath, target})
	return os.WriteFile(outputPath, []byte("synced"), 0644)
}

func (r *recordingOperator) ConcatClips(ctx context.Context, clipPaths []string, outputPath string) error {
	r.concatClips = append([]string{}, clipPaths...)
	if r.emptyFinal {
		return os.WriteFile(outputPath, nil, 0644)
	}
	return os.WriteFile(outputPath, []byte("final"), 0644)
}

func (r *recordingOperator) MakeSlate(ctx context.Context, outputPath string, duration time.Duration, color string) error {
	return nil
}

func writeClip(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0644))
	return path
}

func testPairs(t *testing.T, dir string) []Pair {
	pairs := make([]Pair, 0, 4)
	for i := 1; i <= 4; i++ {
		pairs = append(pairs, Pair{
			Index:     i,
			AudioPath: writeClip(t, dir, fmt.Sprintf("narration_%d.wav", i)),
			VideoPath: writeClip(t, dir, fmt.Sprintf("scene_%d.mp4", i)),
			Duration:  time.Duration(i) * time.Second,
		})
	}
	return pairs
}

func TestAssembleOrdersByBeatIndex(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)

	// Feed pairs in completion order, not beat order.
	shuffled := []Pair{pairs[2], pairs[0], pairs[3], pairs[1]}

	op := &recordingOperator{}
	out := filepath.Join(dir, "final.mp4")
	require.NoError(t, New(op).Assemble(context.Background(), shuffled, dir, out))

	require.Len(t, op.syncCalls, 4)
	for i, call := range op.syncCalls {
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("synced_%d.mp4", i+1)), call.output)
		assert.Equal(t, time.Duration(i+1)*time.Second, call.target)
	}

	require.Len(t, op.concatClips, 4)
	for i, clip := range op.concatClips {
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("synced_%d.mp4", i+1)), clip)
	}

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), data)
}

func TestAssembleSyncTargetsNarrationDuration(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)

	op := &recordingOperator{}
	require.NoError(t, New(op).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4")))

	for i, call := range op.syncCalls {
		assert.Equal(t, pairs[i].AudioPath, call.audio)
		assert.Equal(t, pairs[i].VideoPath, call.video)
		assert.Equal(t, pairs[i].Duration, call.target)
	}
}

func TestAssembleMissingInput(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)
	pairs[1].VideoPath = filepath.Join(dir, "gone.mp4")

	err := New(&recordingOperator{}).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
}

func TestAssembleEmptyInput(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)
	require.NoError(t, os.WriteFile(pairs[0].AudioPath, nil, 0644))

	err := New(&recordingOperator{}).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestAssembleDuplicateIndex(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)
	pairs[2].Index = 2

	err := New(&recordingOperator{}).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate beat index")
}

func TestAssembleSyncFailureNamesBeat(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)

	op := &recordingOperator{syncErrOn: 2}
	err := New(op).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sync beat 2")
}

func TestAssembleEmptyFinalVideo(t *testing.T) {
	dir := t.TempDir()
	pairs := testPairs(t, dir)

	op := &recordingOperator{emptyFinal: true}
	err := New(op).Assemble(context.Background(), pairs, dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestAssembleNoPairs(t *testing.T) {
	err := New(&recordingOperator{}).Assemble(context.Background(), nil, t.TempDir(), "out.mp4")
	require.Error(t, err)
}
