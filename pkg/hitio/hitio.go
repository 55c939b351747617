// Package hitio reads event hit files and writes cluster files, both in YAML.
package hitio

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"blurredcluster/internal/models"
)

// HitRecord is one hit as stored in an event file
type HitRecord struct {
	TPC      int     `yaml:"tpc"`
	Plane    int     `yaml:"plane"`
	Wire     int     `yaml:"wire"`
	PeakTime float64 `yaml:"peakTime"`
	Integral float64 `yaml:"integral"`
}

// EventFile is the layout of an event hit file
type EventFile struct {
	Event int         `yaml:"event"`
	Hits  []HitRecord `yaml:"hits"`
}

// ClusterRecord is one cluster as stored in a cluster file.
// Hits holds indices into the hit list of the event file.
type ClusterRecord struct {
	ID     string  `yaml:"id"`
	TPC    int     `yaml:"tpc"`
	Plane  int     `yaml:"plane"`
	Charge float64 `yaml:"charge"`
	Hits   []int   `yaml:"hits"`
}

// ClusterFile is the layout of a cluster output file
type ClusterFile struct {
	Event    int             `yaml:"event"`
	Clusters []ClusterRecord `yaml:"clusters"`
}

// LoadHits reads the hits of an event file
func LoadHits(path string) (int, []models.Hit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, errors.Wrap(err, "error reading hit file")
	}

	var ev EventFile
	if err := yaml.Unmarshal(data, &ev); err != nil {
		return 0, nil, errors.Wrap(err, "error parsing hit file")
	}

	hits := make([]models.Hit, len(ev.Hits))
	for i, r := range ev.Hits {
		if r.Integral < 0 {
			return 0, nil, errors.Errorf("hit %d: negative integral %g", i, r.Integral)
		}
		hits[i] = models.Hit{
			WireID:   models.WireID{TPC: r.TPC, Plane: r.Plane, Wire: r.Wire},
			PeakTime: r.PeakTime,
			Integral: r.Integral,
		}
	}
	return ev.Event, hits, nil
}

// SaveHits writes hits as an event file
func SaveHits(path string, event int, hits []models.Hit) error {
	ev := EventFile{Event: event, Hits: make([]HitRecord, len(hits))}
	for i, h := range hits {
		ev.Hits[i] = HitRecord{
			TPC:      h.WireID.TPC,
			Plane:    h.WireID.Plane,
			Wire:     h.WireID.Wire,
			PeakTime: h.PeakTime,
			Integral: h.Integral,
		}
	}
	return writeYAML(path, &ev)
}

// ClusterRecords converts clusters to records. Member hits are identified by
// their index in hits, which must be the slice the clusters were built from.
func ClusterRecords(clusters []models.HitCluster, hits []models.Hit) ([]ClusterRecord, error) {
	index := make(map[*models.Hit]int, len(hits))
	for i := range hits {
		index[&hits[i]] = i
	}

	records := make([]ClusterRecord, len(clusters))
	for i, c := range clusters {
		rec := ClusterRecord{
			ID:     c.ID.String(),
			TPC:    c.Key.TPC,
			Plane:  c.Key.Plane,
			Charge: c.Charge(),
			Hits:   make([]int, len(c.Hits)),
		}
		for j, h := range c.Hits {
			idx, ok := index[h]
			if !ok {
				return nil, errors.Errorf("cluster %d: hit %d not in event", i, j)
			}
			rec.Hits[j] = idx
		}
		records[i] = rec
	}
	return records, nil
}

// SaveClusters writes the clusters of an event
func SaveClusters(path string, event int, clusters []models.HitCluster, hits []models.Hit) error {
	records, err := ClusterRecords(clusters, hits)
	if err != nil {
		return err
	}
	return writeYAML(path, &ClusterFile{Event: event, Clusters: records})
}

// LoadClusters reads a cluster file
func LoadClusters(path string) (*ClusterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading cluster file")
	}

	var cf ClusterFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, errors.Wrap(err, "error parsing cluster file")
	}
	return &cf, nil
}

func writeYAML(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "error creating output directory")
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "error marshaling output")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "error writing output file")
	}
	return nil
}
