package speech

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/beatreel/internal/config"
)

// fakeOperator stands in for ffmpeg so engine tests never shell out
// for probing or conversion.
type fakeOperator struct {
	probeDuration time.Duration
	probeErr      error
	conversions   [][2]string
}

func (f *fakeOperator) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.probeDuration, nil
}

func (f *fakeOperator) ConvertToWAV(ctx context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	f.conversions = append(f.conversions, [2]string{src, dst})
	return os.WriteFile(dst, data, 0644)
}

func (f *fakeOperator) FitVideoToAudio(ctx context.Context, videoPath, audioPath, outputPath string, target time.Duration) error {
	return nil
}

func (f *fakeOperator) ConcatClips(ctx context.Context, clipPaths []string, outputPath string) error {
	return nil
}

func (f *fakeOperator) MakeSlate(ctx context.Context, outputPath string, duration time.Duration, color string) error {
	return nil
}

// installMockSay writes a say-workalike shell script into dir. The
// script logs its arguments, writes dummy audio to the -o target and
// exits with exitCode. failures makes the first N invocations exit 1
// before any succeed.
func installMockSay(t *testing.T, dir string, exitCode, failures int) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mock tts scripts need a POSIX shell")
	}

	script := "#!/bin/sh\n" +
		"echo \"$@\" >> '" + filepath.Join(dir, "say.args.log") + "'\n"
	if failures > 0 {
		countFile := filepath.Join(dir, "say.count")
		// Only shell builtins here: the tests point PATH at dir alone,
		// so external commands like cat are not resolvable.
		script += "count=0\n" +
			"[ -f '" + countFile + "' ] && read count < '" + countFile + "'\n" +
			"count=$((count+1))\n" +
			"echo $count > '" + countFile + "'\n" +
			"if [ \"$count\" -le " + strconv.Itoa(failures) + " ]; then exit 1; fi\n"
	}
	script += "out=\"\"\n" +
		"prev=\"\"\n" +
		"for a in \"$@\"; do\n" +
		"  if [ \"$prev\" = \"-o\" ]; then out=\"$a\"; fi\n" +
		"  prev=\"$a\"\n" +
		"done\n" +
		"[ -n \"$out\" ] && printf 'FORMaiff' > \"$out\"\n" +
		"exit " + strconv.Itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(filepath.Join(dir, "say"), []byte(script), 0755))
}

func sayArgs(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "say.args.log"))
	require.NoError(t, err)
	return string(data)
}

func commandConfig() config.SpeechConfig {
	return config.SpeechConfig{
		Engine:   config.EngineCommand,
		Command:  "say",
		Voice:    "Samantha",
		RateWPM:  175,
		Language: language.English,
	}
}

func TestCommandSynthesize(t *testing.T) {
	mockDir := t.TempDir()
	installMockSay(t, mockDir, 0, 0)
	t.Setenv("PATH", mockDir)

	op := &fakeOperator{probeDuration: 3 * time.Second}
	s := newCommandSynthesizer(commandConfig(), op)

	base := filepath.Join(t.TempDir(), "narration_1")
	clip, err := s.Synthesize(context.Background(), "Hello there, curious minds.", base)
	require.NoError(t, err)

	assert.Equal(t, base+".wav", clip.Path)
	assert.Equal(t, 3*time.Second, clip.Duration)
	assert.FileExists(t, clip.Path)

	// The intermediate file is cleaned up after conversion.
	_, err = os.Stat(base + ".aiff")
	assert.True(t, os.IsNotExist(err))

	args := sayArgs(t, mockDir)
	assert.Contains(t, args, "-v Samantha")
	assert.Contains(t, args, "-r 175")
	assert.Contains(t, args, "-o "+base+".aiff")
	assert.Contains(t, args, "Hello there, curious minds.")

	require.Len(t, op.conversions, 1)
	assert.Equal(t, base+".aiff", op.conversions[0][0])
	assert.Equal(t, base+".wav", op.conversions[0][1])
}

func TestCommandSynthesizeRetriesThenSucceeds(t *testing.T) {
	mockDir := t.TempDir()
	installMockSay(t, mockDir, 0, 2)
	t.Setenv("PATH", mockDir)

	op := &fakeOperator{probeDuration: 2 * time.Second}
	s := newCommandSynthesizer(commandConfig(), op)
	s.backoff = time.Millisecond

	base := filepath.Join(t.TempDir(), "narration_2")
	clip, err := s.Synthesize(context.Background(), "Third time lucky.", base)
	require.NoError(t, err)
	assert.Equal(t, base+".wav", clip.Path)
}

func TestCommandSynthesizeExhaustsAttempts(t *testing.T) {
	mockDir := t.TempDir()
	installMockSay(t, mockDir, 1, 0)
	t.Setenv("PATH", mockDir)

	op := &fakeOperator{probeDuration: 2 * time.Second}
	s := newCommandSynthesizer(commandConfig(), op)
	s.backoff = time.Millisecond

	base := filepath.Join(t.TempDir(), "narration_3")
	_, err := s.Synthesize(context.Background(), "This never works.", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestCommandSynthesizeMissingBinary(t *testing.T) {
	t.Setenv("PATH", "")

	s := newCommandSynthesizer(commandConfig(), &fakeOperator{})
	_, err := s.Synthesize(context.Background(), "anything", "/tmp/never")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCommandSynthesizeRejectsEmptyText(t *testing.T) {
	s := newCommandSynthesizer(commandConfig(), &fakeOperator{})
	_, err := s.Synthesize(context.Background(), "   ", "/tmp/never")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty narration text")
}

func TestCommandSynthesizeZeroDuration(t *testing.T) {
	mockDir := t.TempDir()
	installMockSay(t, mockDir, 0, 0)
	t.Setenv("PATH", mockDir)

	op := &fakeOperator{probeDuration: 0}
	s := newCommandSynthesizer(commandConfig(), op)
	s.backoff = time.Millisecond

	base := filepath.Join(t.TempDir(), "narration_4")
	_, err := s.Synthesize(context.Background(), "Silent clip.", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero duration")
}

func TestNewSynthesizerSelectsEngine(t *testing.T) {
	op := &fakeOperator{}

	s, err := NewSynthesizer(config.SpeechConfig{Engine: config.EngineCommand}, op)
	require.NoError(t, err)
	assert.IsType(t, &commandSynthesizer{}, s)

	s, err = NewSynthesizer(config.SpeechConfig{Engine: config.EngineSherpa, Language: language.English}, op)
	require.NoError(t, err)
	assert.IsType(t, &sherpaSynthesizer{}, s)

	s, err = NewSynthesizer(config.SpeechConfig{Engine: config.EngineOpenAI}, op)
	require.NoError(t, err)
	assert.IsType(t, &openAISynthesizer{}, s)
}

func TestNewSynthesizerUnknownEngine(t *testing.T) {
	_, err := NewSynthesizer(config.SpeechConfig{Engine: "gramophone"}, &fakeOperator{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown speech engine")
}
