package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpilot_uploads_total",
		Help: "Uploaded files by outcome.",
	}, []string{"result"})

	ocrStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpilot_ocr_starts_total",
		Help: "OCR workflow triggers by outcome.",
	}, []string{"result"})

	streamRelaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpilot_stream_relays_total",
		Help: "Upstream event-stream relays by endpoint.",
	}, []string{"endpoint"})

	fileTokenRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpilot_file_token_rejections_total",
		Help: "Rejected OCR file-token validations by reason.",
	}, []string{"reason"})
)
