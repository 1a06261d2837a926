// Package sslog implements the append-only, page-aligned log every key and
// value is ultimately written to. Blocks never store a key or value
// directly; they store a Log address, and resolve it through a Log to read
// the entry back. A Log can be entirely in-memory (the default, and the
// only mode this port exercises end to end) or file-backed through
// pkg/filesys.
package sslog

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/filesys"
	"github.com/sfmqrb/sphinx/pkg/seginfo"
	"go.uber.org/zap"
)

// pageSize is the byte stride between pages of the file-backed log: page p's
// records are written from byte p*pageSize onward. Each record is written
// and synced as it arrives; the log does not hold a page in memory and
// flush it when full.
const pageSize = 4096

// Entry is one key/value record as it is written to and read from the log.
type Entry struct {
	Key   []byte
	Value []byte
}

// Address is an opaque handle returned by Write and consumed by Read. It
// encodes (page index, entry index within page), the same scheme the
// original's write() computed from num_entries_per_page_log.
type Address uint64

// Cache lets a Log short-circuit a page read through an address-keyed
// front cache (internal/bufferpool's Pool satisfies this without either
// package importing the other). A Log with no Cache set behaves exactly as
// if one were never consulted.
type Cache interface {
	Get(addr Address) (Entry, bool)
	Put(addr Address, e Entry) bool
}

// Log is an append-only, page-buffered record store. All exported methods
// are safe for concurrent use.
type Log struct {
	mu sync.Mutex

	log *zap.SugaredLogger

	inMemory bool
	file     *os.File
	cache    Cache
	pages    [][]byte

	buffer       []Entry
	entriesPerPage int

	firstValidPage int
	lastValidPage  int
	numPages       int
}

// segmentDirName is the subdirectory under a Log's DataDir where its
// backing file lives, named and discovered through pkg/seginfo the same
// way the rest of this port's on-disk state is.
const segmentDirName = "log"

// Config carries the subset of options.Config the log needs at construction.
type Config struct {
	InMemory bool
	DataDir  string
	// FileName is the seginfo prefix used to name and, on restart,
	// rediscover this log's backing file. It is not a literal filename.
	FileName       string
	LogPages       int
	EntriesPerPage int
}

// New constructs a Log. When cfg.InMemory is false, it opens the log's
// backing file under cfg.DataDir, recovering the most recent one named
// with cfg.FileName as its seginfo prefix if a restart finds one, or
// creating the first one otherwise.
func New(cfg Config) (*Log, error) {
	entriesPerPage := cfg.EntriesPerPage
	if entriesPerPage <= 0 {
		entriesPerPage = 64
	}

	l := &Log{
		inMemory:       cfg.InMemory,
		entriesPerPage: entriesPerPage,
		numPages:       cfg.LogPages,
		lastValidPage:  0,
	}

	if cfg.InMemory {
		l.pages = make([][]byte, 0, cfg.LogPages)
		return l, nil
	}

	segDir := filepath.Join(cfg.DataDir, segmentDirName)
	if err := filesys.CreateDir(segDir, 0o755, true); err != nil {
		return nil, appErrors.ClassifyDirectoryCreationError(err, segDir)
	}

	existing, err := seginfo.GetLastSegmentName(cfg.DataDir, segmentDirName, cfg.FileName)
	if err != nil {
		return nil, appErrors.NewIoError(err, "NewLog").WithDetail("dir", segDir)
	}
	path := existing
	if path == "" {
		path = filepath.Join(segDir, seginfo.GenerateName(1, cfg.FileName))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, appErrors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	l.file = f
	return l, nil
}

// SetCache installs the front cache Read consults before touching a page,
// and Write populates on every append. Passing nil disables it.
func (l *Log) SetCache(c Cache) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = c
}

// SetLogger installs the structured logger Write/Read/advancePage report
// through. Passing nil silences logging, which is also the zero-value
// behavior before SetLogger is ever called.
func (l *Log) SetLogger(log *zap.SugaredLogger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = log
}

// Close releases the log's backing file, if any.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// encodeEntry lays out an Entry as a length-prefixed record: this is a
// length-prefixed stand-in for a fixed-size record, sized
// here to handle arbitrary key/value byte slices rather than one fixed
// numeric type.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 8+len(e.Key)+len(e.Value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(e.Value)))
	copy(buf[8:], e.Key)
	copy(buf[8+len(e.Key):], e.Value)
	return buf
}

func decodeEntry(buf []byte) (Entry, error) {
	if len(buf) < 8 {
		return Entry{}, appErrors.NewIoError(io.ErrUnexpectedEOF, "Read").WithMessage("entry header truncated")
	}
	keyLen := binary.LittleEndian.Uint32(buf[0:4])
	valLen := binary.LittleEndian.Uint32(buf[4:8])
	if uint64(8+keyLen+valLen) > uint64(len(buf)) {
		return Entry{}, appErrors.NewIoError(io.ErrUnexpectedEOF, "Read").WithMessage("entry payload truncated")
	}
	key := make([]byte, keyLen)
	copy(key, buf[8:8+keyLen])
	val := make([]byte, valLen)
	copy(val, buf[8+keyLen:8+keyLen+valLen])
	return Entry{Key: key, Value: val}, nil
}

// Write appends e to the log, returning the Address it can later be read
// back from.
func (l *Log) Write(e Entry) (Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := encodeEntry(e)
	pageIdx := l.lastValidPage
	entryIdx := len(l.buffer)

	if l.inMemory {
		for len(l.pages) <= pageIdx {
			l.pages = append(l.pages, nil)
		}
		page := l.pages[pageIdx]
		if entryIdx == 0 {
			// A page reused after wrap-around starts over empty.
			page = nil
		}
		page = append(page, record...)
		l.pages[pageIdx] = page
	} else {
		offset := int64(pageIdx)*pageSize + int64(l.currentPageOffset())
		if _, err := l.file.WriteAt(record, offset); err != nil {
			if l.log != nil {
				l.log.Errorw("sslog write failed", "error", err, "pageIdx", pageIdx, "offset", offset)
			}
			return 0, appErrors.NewIoError(err, "Write")
		}
		if err := l.file.Sync(); err != nil {
			if l.log != nil {
				l.log.Errorw("sslog sync failed", "error", err, "pageIdx", pageIdx, "offset", offset)
			}
			return 0, appErrors.ClassifySyncError(err, filepath.Base(l.file.Name()), l.file.Name(), int(offset))
		}
	}

	l.buffer = append(l.buffer, e)
	addr := Address((uint64(pageIdx) << l.entriesPerPageLog()) | uint64(entryIdx))

	if len(l.buffer) >= l.entriesPerPage {
		l.advancePage()
	}

	if l.cache != nil {
		l.cache.Put(addr, e)
	}
	return addr, nil
}

func (l *Log) currentPageOffset() int {
	total := 0
	for _, e := range l.buffer {
		total += len(encodeEntry(e))
	}
	return total
}

func (l *Log) entriesPerPageLog() uint {
	n := l.entriesPerPage
	shift := uint(0)
	for (1 << shift) < n {
		shift++
	}
	return shift
}

func (l *Log) advancePage() {
	l.buffer = nil
	l.lastValidPage++
	if l.numPages > 0 && l.lastValidPage >= l.numPages {
		l.lastValidPage = l.firstValidPage
		if l.log != nil {
			l.log.Infow("sslog wrapped back to first page", "numPages", l.numPages)
		}
	}
}

// Read resolves addr back into the Entry written at that address,
// consulting the front cache first if one is installed.
func (l *Log) Read(addr Address) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache != nil {
		if e, ok := l.cache.Get(addr); ok {
			return e, nil
		}
	}

	pageIdx := int(uint64(addr) >> l.entriesPerPageLog())
	entryIdx := int(uint64(addr) & ((1 << l.entriesPerPageLog()) - 1))

	if pageIdx == l.lastValidPage && entryIdx < len(l.buffer) {
		return l.buffer[entryIdx], nil
	}

	var (
		entry Entry
		err   error
	)
	if l.inMemory {
		if pageIdx >= len(l.pages) {
			return Entry{}, appErrors.NewNotFoundError("").WithOperation("Read")
		}
		entry, err = l.readFromBytes(l.pages[pageIdx], entryIdx)
	} else {
		page := make([]byte, pageSize)
		if _, raErr := l.file.ReadAt(page, int64(pageIdx)*pageSize); raErr != nil && raErr != io.EOF {
			if l.log != nil {
				l.log.Errorw("sslog read failed", "error", raErr, "pageIdx", pageIdx, "entryIdx", entryIdx)
			}
			return Entry{}, appErrors.NewIoError(raErr, "Read")
		}
		entry, err = l.readFromBytes(page, entryIdx)
	}
	if err == nil && l.cache != nil {
		l.cache.Put(addr, entry)
	}
	return entry, err
}

func (l *Log) readFromBytes(page []byte, entryIdx int) (Entry, error) {
	offset := 0
	for i := 0; i < entryIdx; i++ {
		if offset+8 > len(page) {
			return Entry{}, appErrors.NewNotFoundError("").WithOperation("Read")
		}
		keyLen := binary.LittleEndian.Uint32(page[offset : offset+4])
		valLen := binary.LittleEndian.Uint32(page[offset+4 : offset+8])
		offset += 8 + int(keyLen) + int(valLen)
	}
	if offset >= len(page) {
		return Entry{}, appErrors.NewNotFoundError("").WithOperation("Read")
	}
	return decodeEntry(page[offset:])
}
