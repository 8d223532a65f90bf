package net

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesTrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plainnn_train_samples_total",
		Help: "Total number of samples back-propagated",
	})

	batchesTrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plainnn_train_batches_total",
		Help: "Total number of gradient steps applied",
	})

	emptyBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plainnn_train_empty_batches_total",
		Help: "Batches skipped because the loader returned no samples",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plainnn_train_batch_duration_seconds",
		Help:    "Time spent on forward, backward and step for one batch",
		Buckets: prometheus.DefBuckets,
	})

	epochLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plainnn_train_epoch_loss",
		Help: "Mean squared-error loss of the last completed epoch",
	})

	epochAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plainnn_train_epoch_accuracy",
		Help: "Training accuracy of the last completed epoch",
	})

	learningRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plainnn_train_learning_rate",
		Help: "Learning rate used for the next epoch",
	})

	evalAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plainnn_eval_accuracy",
		Help: "Accuracy of the last evaluation",
	})

	checkpointFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plainnn_checkpoint_failures_total",
		Help: "Checkpoints that could not be written",
	})
)
