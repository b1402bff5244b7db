package robust

// Listener is notified of the progress of an estimation. All calls happen
// on the goroutine running Estimate while the estimator is locked.
type Listener[M any] interface {
	OnEstimateStart(e *Estimator[M])
	OnEstimateEnd(e *Estimator[M])
	OnEstimateNextIteration(e *Estimator[M], iteration int)
	OnEstimateProgressChange(e *Estimator[M], progress float64)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are
// skipped.
type ListenerFuncs[M any] struct {
	Start          func(e *Estimator[M])
	End            func(e *Estimator[M])
	NextIteration  func(e *Estimator[M], iteration int)
	ProgressChange func(e *Estimator[M], progress float64)
}

// OnEstimateStart implements Listener.
func (l *ListenerFuncs[M]) OnEstimateStart(e *Estimator[M]) {
	if l.Start != nil {
		l.Start(e)
	}
}

// OnEstimateEnd implements Listener.
func (l *ListenerFuncs[M]) OnEstimateEnd(e *Estimator[M]) {
	if l.End != nil {
		l.End(e)
	}
}

// OnEstimateNextIteration implements Listener.
func (l *ListenerFuncs[M]) OnEstimateNextIteration(e *Estimator[M], iteration int) {
	if l.NextIteration != nil {
		l.NextIteration(e, iteration)
	}
}

// OnEstimateProgressChange implements Listener.
func (l *ListenerFuncs[M]) OnEstimateProgressChange(e *Estimator[M], progress float64) {
	if l.ProgressChange != nil {
		l.ProgressChange(e, progress)
	}
}
