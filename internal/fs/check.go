package fs

import (
	"sort"
	"strings"
	"time"

	"deskfs/internal/kv"
)

// Report is the result of a consistency scan.
type Report struct {
	// Entries is the number of index entries scanned, root included.
	Entries int
	// Dangling lists files in the index whose content key is missing.
	Dangling []string
	// Orphans lists content keys' paths with no file entry in the index.
	Orphans []string
	// ParentViolations lists entries whose parent is not a directory.
	ParentViolations []string
	// OrphanScan is false when the store cannot enumerate keys, in which
	// case Orphans is always empty.
	OrphanScan bool
}

// Healthy reports whether the scan found nothing wrong.
func (r Report) Healthy() bool {
	return len(r.Dangling) == 0 && len(r.Orphans) == 0 && len(r.ParentViolations) == 0
}

// Check scans the index against the store. It never modifies anything.
func (fsys *FileSystem) Check() (report Report, err error) {
	defer fsys.observe(OpCheck, time.Now(), &err)

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	report.Entries = len(fsys.index)
	for key, meta := range fsys.index {
		if key == "/" {
			continue
		}
		vp := VirtualPath{path: key}
		if parent, ok := fsys.index[vp.Parent().String()]; !ok || !parent.IsDir() {
			report.ParentViolations = append(report.ParentViolations, key)
		}
		if meta.IsDir() {
			continue
		}
		_, found, err := fsys.store.Get(fsys.ContentKey(vp))
		if err != nil {
			return Report{}, ioError(OpCheck, key, err)
		}
		if !found {
			report.Dangling = append(report.Dangling, key)
		}
	}

	if lister, ok := fsys.store.(kv.Lister); ok {
		report.OrphanScan = true
		keys, err := lister.Keys(fsys.contentPrefix + "/")
		if err != nil {
			return Report{}, ioError(OpCheck, "", err)
		}
		for _, k := range keys {
			p := strings.TrimPrefix(k, fsys.contentPrefix)
			if meta, ok := fsys.index[p]; !ok || meta.IsDir() {
				report.Orphans = append(report.Orphans, p)
			}
		}
	} else {
		vfsLogger.Debug("Store cannot list keys, skipping orphan scan")
	}

	sort.Strings(report.Dangling)
	sort.Strings(report.Orphans)
	sort.Strings(report.ParentViolations)
	return report, nil
}

// Reclaim removes the content keys Check reports as orphans and returns
// how many were removed.
func (fsys *FileSystem) Reclaim() (int, error) {
	report, err := fsys.Check()
	if err != nil {
		return 0, err
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	removed := 0
	for _, p := range report.Orphans {
		// Skip anything written since the scan.
		if meta, ok := fsys.index[p]; ok && !meta.IsDir() {
			continue
		}
		if err := fsys.store.Remove(fsys.contentPrefix + p); err != nil {
			return removed, ioError(OpCheck, p, err)
		}
		removed++
	}

	if removed > 0 {
		vfsLogger.Info("Reclaimed %d orphaned content keys", removed)
	}
	return removed, nil
}
