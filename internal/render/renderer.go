package render

import (
	"context"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/pkg/log"
)

type arkRenderer struct {
	client     *Client
	poller     *Poller
	downloader *Downloader
}

// NewRenderer wires submit, poll and download into one operation.
func NewRenderer(cfg config.RenderConfig) Renderer {
	client := NewClient(cfg)
	return &arkRenderer{
		client:     client,
		poller:     NewPoller(client, cfg),
		downloader: NewDownloader(cfg.RequestTimeout),
	}
}

// RenderScene returns the remote task id even on failure so callers
// can record it against the beat.
func (r *arkRenderer) RenderScene(ctx context.Context, prompt, referenceImage, outputPath string) (string, error) {
	taskID, err := r.client.SubmitTask(ctx, prompt, referenceImage)
	if err != nil {
		return "", err
	}
	log.Info("render task %s submitted", taskID)

	url, err := r.poller.WaitForVideo(ctx, taskID)
	if err != nil {
		return taskID, err
	}

	if err := r.downloader.Download(ctx, url, outputPath); err != nil {
		return taskID, &TaskError{TaskID: taskID, Message: err.Error()}
	}
	log.Info("render task %s downloaded to %s", taskID, outputPath)
	return taskID, nil
}
