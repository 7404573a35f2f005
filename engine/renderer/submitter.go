package renderer

import (
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief Hands recorded frames to the graphics queue and presents them.
 * The backend waits on image-available at the colour output stage and
 * signals render-finished plus the slot fence; present waits on
 * render-finished.
 */
type Submitter struct {
	backend metadata.Backend
}

func NewSubmitter(backend metadata.Backend) *Submitter {
	return &Submitter{backend: backend}
}

func (s *Submitter) Submit(slot int) error {
	if err := s.backend.Submit(slot); err != nil {
		core.LogError("queue submit failed on slot %d: %s", slot, err)
		if core.KindOf(err) == core.KindDeviceLost {
			return err
		}
		return core.NewFrameDropped(core.StageSubmit, "submit failed", err)
	}
	return nil
}

/**
 * @brief Presents the image of a submitted frame.
 * @return recreate is true when the swapchain no longer matches the surface;
 * the frame itself was presented or discarded and is not an error.
 */
func (s *Submitter) Present(slot int, image uint32) (recreate bool, err error) {
	err = s.backend.Present(slot, image)
	switch core.KindOf(err) {
	case core.KindUnknown:
		if err == nil {
			return false, nil
		}
	case core.KindSwapchainOutOfDate, core.KindSwapchainSuboptimal:
		core.LogDebug("swapchain needs recreation after present: %s", err)
		return true, nil
	case core.KindDeviceLost:
		core.LogError("device lost while presenting: %s", err)
		return false, err
	}
	core.LogError("present failed on slot %d: %s", slot, err)
	return false, core.NewError(core.KindFrameDropped, core.StagePresent, err)
}
