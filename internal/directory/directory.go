// Package directory implements the top of the storage hierarchy: a
// power-of-two vector of Segments, indexed by a fingerprint's leading bits.
// A write that a Segment cannot absorb, even after extension-block
// displacement, triggers a split: the Directory asks the segment for its two
// successors, doubling its own vector first if that segment occupies a
// single slot (its FPIndex has caught up to the directory's depth), then
// splices the successors into every slot that used to point at it and
// retries.
//
// Grounded on original_source/directory/directory.h's performWriteTask and
// doubleSegmentDataVec: the retry-on-split loop, and doubling the directory
// only when the splitting segment's FPIndex has already caught up to the
// directory's own depth, come directly from there. Growth interleaves
// (slots 2i and 2i+1 both inherit slot i's segment) rather than appending,
// since fingerprint.Prefix reads bits most-significant-first and Segment
// already assumes each additional directory bit is the next contiguous one;
// interleaving is what keeps a segment's existing slots addressable by its
// own leading bits as the directory grows deeper. The original's per-thread
// task queues and worker pool are a throughput optimization orthogonal to
// correctness; this port relies on Go's own goroutine scheduler and guards
// segments with a single RWMutex instead.
package directory

import (
	"sync"

	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/segment"
	"github.com/sfmqrb/sphinx/internal/sslog"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/options"
	"go.uber.org/zap"
)

// Directory routes fingerprints to Segments and grows the segment vector
// as segments split.
type Directory struct {
	mu sync.RWMutex

	cfg *options.Config
	log *zap.SugaredLogger

	segments   []*segment.Segment
	countLog   int // log2(len(segments))
	maxFPIndex int // deepest FPIndex any installed segment was born at
}

// SetLogger installs the structured logger Write/split report through.
// Passing nil silences logging, which is also the zero-value behavior
// before SetLogger is ever called.
func (d *Directory) SetLogger(log *zap.SugaredLogger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = log
}

// New creates a Directory with 2^countLog segments, each born at FPIndex
// countLog (matching the original's initial max_FP_index before any
// home-block or l-slot bits are layered on by Segment itself).
func New(cfg *options.Config, countLog int) *Directory {
	if countLog < 0 {
		countLog = 0
	}
	d := &Directory{
		cfg:        cfg,
		countLog:   countLog,
		maxFPIndex: countLog,
	}
	d.segments = make([]*segment.Segment, 1<<uint(countLog))
	for i := range d.segments {
		d.segments[i] = segment.New(cfg, countLog)
	}
	return d
}

func (d *Directory) segmentIndex(fp fingerprint.Fingerprint, countLog int) int {
	if countLog == 0 {
		return 0
	}
	return int(fp.Prefix(countLog))
}

func (d *Directory) lookup(fp fingerprint.Fingerprint) *segment.Segment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.segments[d.segmentIndex(fp, d.countLog)]
}

// Write routes fp to its segment, splitting and retrying as needed. It
// returns appErrors.ErrorCodeNoSpace if cfg.Expand is false and the target
// segment cannot absorb the write.
func (d *Directory) Write(fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) error {
	for {
		seg := d.lookup(fp)
		err := seg.Write(fp, log, addr)
		if err == nil {
			return nil
		}
		if appErrors.GetErrorCode(err) != appErrors.ErrorCodeSplitRequired {
			return err
		}
		if !d.cfg.Expand {
			if d.log != nil {
				d.log.Errorw("write rejected: segment full and expansion disabled")
			}
			return appErrors.NewNoSpaceError("Write")
		}
		if err := d.split(seg, log); err != nil {
			if d.log != nil {
				d.log.Errorw("segment split failed", "error", err)
			}
			return err
		}
		// retry from the top: the fingerprint now routes to one of the
		// two successors just installed.
	}
}

// Read routes fp to its segment and resolves it there.
func (d *Directory) Read(fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	seg := d.lookup(fp)
	return seg.Read(fp, log)
}

// Remove routes fp to its segment and removes it there.
func (d *Directory) Remove(fp fingerprint.Fingerprint, log *sslog.Log) error {
	seg := d.lookup(fp)
	return seg.Remove(fp, log)
}

// split grows old into two successors and installs them in place of old in
// every directory slot that still points at it, doubling the directory
// first if old's FPIndex has already caught up to the directory's depth.
func (d *Directory) split(old *segment.Segment, log *sslog.Log) error {
	lo, hi, err := old.Successors(log)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Another goroutine may have already split this exact segment between
	// our lookup and this lock; only install if old is still referenced.
	stillInstalled := false
	for _, s := range d.segments {
		if s == old {
			stillInstalled = true
			break
		}
	}
	if !stillInstalled {
		return nil
	}

	if d.maxFPIndex == old.FPIndex() {
		d.double()
		if d.log != nil {
			d.log.Infow("directory doubled", "countLog", d.countLog)
		}
	}

	if d.log != nil {
		d.log.Infow("segment split", "fpIndex", old.FPIndex(), "countLog", d.countLog)
	}

	// old occupies every slot whose leading old.FPIndex() bits match its
	// birth index; the bit immediately after that (position old.FPIndex(),
	// counting from the fingerprint's most significant end) is exactly the
	// bit Segment.Successors just split on, so a slot's own index tells us
	// which successor belongs there.
	oldFP := old.FPIndex()
	shift := uint(d.countLog - oldFP - 1)
	for i, s := range d.segments {
		if s != old {
			continue
		}
		if (i>>shift)&1 == 0 {
			d.segments[i] = lo
		} else {
			d.segments[i] = hi
		}
	}
	return nil
}

// double grows segments to twice its size by interleaving: slots 2i and
// 2i+1 both point at the segment that used to occupy slot i. Fingerprint
// prefixes are read most-significant-bit first (fingerprint.Prefix), so the
// newly significant bit the deeper index adds is the trailing one; every
// existing segment's leading bits, and so its identity, is unaffected by
// growth until it is specifically split.
func (d *Directory) double() {
	current := len(d.segments)
	grown := make([]*segment.Segment, current*2)
	for i, s := range d.segments {
		grown[2*i] = s
		grown[2*i+1] = s
	}
	d.segments = grown
	d.countLog++
	d.maxFPIndex++
}

// SegmentCountLog returns the current directory depth (log2 of the number
// of installed segment slots).
func (d *Directory) SegmentCountLog() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.countLog
}
