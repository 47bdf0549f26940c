// Package reconcile finds risk accepts whose image is no longer running
// and drives their deletion.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/buemura/sectools/pkg/types"
)

// Field paths on risk-accept definitions.
const (
	FieldAcceptID     = "riskAcceptanceDefinitionID"
	FieldEntityType   = "entityType"
	FieldEntityValue  = "entityValue"
	FieldContextType  = "context.0.contextType"
	FieldContextValue = "context.0.contextValue"
	FieldMainAsset    = "mainAssetName"

	EntityVulnerability = "vulnerability"
	EntityImageName     = "imageName"
	ContextImageName    = "imageName"
)

// ImageSet is the set of image names observed running.
type ImageSet map[string]struct{}

// Has reports whether image is in the set.
func (s ImageSet) Has(image string) bool {
	_, ok := s[image]
	return ok
}

// ExceptionIndex maps an image name to the accept ids that reference it.
type ExceptionIndex map[string][]string

// OrphanMap is an ExceptionIndex restricted to images that are not running.
type OrphanMap map[string][]string

// RunningImages dedupes the image field of runtime results. Results
// without the field are ignored.
func RunningImages(results []types.Record, field string) ImageSet {
	if field == "" {
		field = FieldMainAsset
	}
	set := make(ImageSet, len(results))
	for _, r := range results {
		if name := r.String(field); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// ImageFor returns the image an accept targets, or false when the accept
// is not tied to an image name.
func ImageFor(entry types.Record) (string, bool) {
	switch entry.String(FieldEntityType) {
	case EntityVulnerability:
		ctx := entry.Get("context")
		if !ctx.IsArray() || len(ctx.Array()) == 0 {
			return "", false
		}
		if entry.String(FieldContextType) != ContextImageName {
			return "", false
		}
		return entry.String(FieldContextValue), true
	case EntityImageName:
		return entry.String(FieldEntityValue), true
	default:
		return "", false
	}
}

// BuildExceptionIndex groups accept ids by target image. CVE accepts use
// the first context element when it is an imageName context; whole-image
// accepts use entityValue. Anything else is skipped.
func BuildExceptionIndex(entries []types.Record) (ExceptionIndex, error) {
	index := make(ExceptionIndex)
	for i, e := range entries {
		image, ok := ImageFor(e)
		if !ok {
			continue
		}
		id, err := e.Require(FieldAcceptID)
		if err != nil {
			return nil, fmt.Errorf("accept %d: %w", i, err)
		}
		index[image] = append(index[image], id.String())
	}
	return index, nil
}

// FindOrphans returns the entries of index whose image is not running.
func FindOrphans(running ImageSet, index ExceptionIndex) OrphanMap {
	orphans := make(OrphanMap, len(index))
	for image, ids := range index {
		if len(ids) == 0 {
			continue
		}
		orphans[image] = slices.Clone(ids)
	}
	for image := range running {
		delete(orphans, image)
	}
	return orphans
}

// Images returns the orphaned image names in sorted order.
func (m OrphanMap) Images() []string {
	images := make([]string, 0, len(m))
	for image := range m {
		images = append(images, image)
	}
	slices.Sort(images)
	return images
}

// Count returns the number of id references, duplicates included.
func (m OrphanMap) Count() int {
	n := 0
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// IDs returns every distinct id, ordered by image then position.
func (m OrphanMap) IDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, image := range m.Images() {
		for _, id := range m[image] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// SelectEntries returns the full accept objects whose id is orphaned,
// in their original order.
func SelectEntries(entries []types.Record, orphans OrphanMap) []types.Record {
	wanted := make(map[string]struct{})
	for _, id := range orphans.IDs() {
		wanted[id] = struct{}{}
	}
	selected := make([]types.Record, 0, len(wanted))
	for _, e := range entries {
		if _, ok := wanted[e.String(FieldAcceptID)]; ok {
			selected = append(selected, e)
		}
	}
	return selected
}

// VulnerabilityAcceptIDs returns the id of every CVE accept.
func VulnerabilityAcceptIDs(entries []types.Record) ([]string, error) {
	var ids []string
	for i, e := range entries {
		if e.String(FieldEntityType) != EntityVulnerability {
			continue
		}
		id, err := e.Require(FieldAcceptID)
		if err != nil {
			return nil, fmt.Errorf("accept %d: %w", i, err)
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

// Deleter removes one resource by id.
type Deleter interface {
	Delete(ctx context.Context, path, id string) error
}

// DeleteOrphans deletes every orphaned id at most once and returns how
// many deletes were issued. It stops at the first failure.
func DeleteOrphans(ctx context.Context, d Deleter, path string, orphans OrphanMap, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	deleted := make(map[string]struct{})
	for _, image := range orphans.Images() {
		for _, id := range orphans[image] {
			if _, ok := deleted[id]; ok {
				logger.Debug("accept already deleted", "id", id, "image", image)
				continue
			}
			if err := d.Delete(ctx, path, id); err != nil {
				return len(deleted), err
			}
			deleted[id] = struct{}{}
			logger.Debug("deleted orphaned accept", "id", id, "image", image)
		}
	}
	return len(deleted), nil
}

// DeleteIDs deletes each distinct id in order.
func DeleteIDs(ctx context.Context, d Deleter, path string, ids []string, logger *slog.Logger) (int, error) {
	return DeleteOrphans(ctx, d, path, OrphanMap{"": ids}, logger)
}
