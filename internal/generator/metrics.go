package generator

import (
	"time"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/rotation"
)

type nopMetrics struct{}

func (nopMetrics) OccurrenceGenerated(model.RotationStrategy) {}
func (nopMetrics) DuplicateSkipped() {}
func (nopMetrics) RotationConflict() {}
func (nopMetrics) AssigneeSelected(model.RotationStrategy, rotation.Reason) {}
func (nopMetrics) RunFinished(time.Duration, bool) {}
