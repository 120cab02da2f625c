package main

import (
	"log"

	"lorebound.gg/internal/config"
	"lorebound.gg/internal/persistence/r2s3"
)

type r2MirrorRuntime struct {
	enabled bool
	mirror  *r2s3.Mirror
}

// buildR2MirrorRuntime starts the bucket mirror for snapshots, archives and
// finished journal segments when LB_R2_MIRROR is set.
func buildR2MirrorRuntime(cfg config.R2, dataDir string, queueCapacity int, logger *log.Logger) (*r2MirrorRuntime, error) {
	if !cfg.Mirror {
		return &r2MirrorRuntime{enabled: false}, nil
	}
	client, err := r2s3.New(cfg.Endpoint, cfg.Bucket, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	mirror := r2s3.NewMirror(client, dataDir, cfg.Prefix, cfg.UploadWorkers, queueCapacity, logger)
	return &r2MirrorRuntime{enabled: true, mirror: mirror}, nil
}

func (r *r2MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *r2MirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *r2MirrorRuntime) Stats() (r2s3.MirrorStats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return r2s3.MirrorStats{}, false
	}
	return r.mirror.Stats(), true
}
