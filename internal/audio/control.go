// SPDX-License-Identifier: MIT
package audio

const commandQueue = 32

type commandKind uint8

const (
	cmdPlay commandKind = iota
	cmdStop
	cmdRecord
	cmdStopRecord
	cmdRewind
	cmdBarrier
)

type command struct {
	kind commandKind
	done chan struct{} // closed after a barrier is reached
}

// enqueue never blocks; a full queue drops the command.
func (e *Engine) enqueue(c command) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.commands <- c:
	default:
		e.dropped.Add(1)
	}
}

// Flush waits until every transport command issued before it has been
// applied. It returns immediately once the engine is closed.
func (e *Engine) Flush() {
	c := command{kind: cmdBarrier, done: make(chan struct{})}
	select {
	case e.commands <- c:
	case <-e.done:
		return
	}
	select {
	case <-c.done:
	case <-e.done:
	}
}

func (e *Engine) runControl() {
	defer e.wg.Done()
	for {
		select {
		case c := <-e.commands:
			e.apply(c)
		case <-e.done:
			return
		}
	}
}

// apply runs on the control goroutine. Files are opened before the
// transport starts recording and closed after it stops.
func (e *Engine) apply(c command) {
	tl := e.timeline
	switch c.kind {
	case cmdPlay:
		tl.TransportPlay(true)
	case cmdStop:
		tl.TransportPlay(false)
		e.stopFile()
	case cmdRecord:
		if e.config.Recording.OutputDir != "" {
			if _, open := e.Recording(); !open {
				if err := e.StartRecording(""); err != nil {
					engineLog.Errorf("Cannot record: %v", err)
					return
				}
			}
		}
		tl.TransportRecord(true)
	case cmdStopRecord:
		tl.TransportRecord(false)
		e.stopFile()
	case cmdRewind:
		tl.TransportRewind()
	case cmdBarrier:
		close(c.done)
	}
}

func (e *Engine) stopFile() {
	if _, err := e.StopRecording(); err != nil {
		engineLog.Errorf("Error stopping recording: %v", err)
	}
}
