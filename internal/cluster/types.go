package cluster

import (
	"encoding/json"
	"strings"
)

// StoreTypeRemoteSnapshot is the store kind of an index mounted from a repository snapshot.
const StoreTypeRemoteSnapshot = "remote_snapshot"

// IndexInfo is one row of the _cat/indices listing.
type IndexInfo struct {
	Index     string `json:"index"`
	Health    string `json:"health,omitempty"`
	Status    string `json:"status,omitempty"`
	DocsCount string `json:"docs.count,omitempty"`
	StoreSize string `json:"store.size,omitempty"`
}

// IndexSettings holds the subset of index settings the lifecycle reads.
type IndexSettings struct {
	// CreationDate is the engine-reported creation time in epoch milliseconds, as a string.
	CreationDate string
	// StoreType is "remote_snapshot" for searchable snapshot mounts, empty otherwise.
	StoreType string
}

type settingsResponse map[string]struct {
	Settings struct {
		Index struct {
			CreationDate string `json:"creation_date"`
			Store        struct {
				Type string `json:"type"`
			} `json:"store"`
		} `json:"index"`
	} `json:"settings"`
}

// AliasConfig is the per-alias configuration attached to an index.
type AliasConfig struct {
	IsWriteIndex bool `json:"is_write_index,omitempty"`
}

type aliasesResponse map[string]struct {
	Aliases map[string]AliasConfig `json:"aliases"`
}

// SnapshotState is the lifecycle state the engine reports for a snapshot.
type SnapshotState string

const (
	SnapshotSuccess    SnapshotState = "SUCCESS"
	SnapshotPartial    SnapshotState = "PARTIAL"
	SnapshotFailed     SnapshotState = "FAILED"
	SnapshotInProgress SnapshotState = "IN_PROGRESS"
	SnapshotStarted    SnapshotState = "STARTED"
	SnapshotInit       SnapshotState = "INIT"
)

// ShardStats summarizes shard outcomes of a snapshot.
type ShardStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// SnapshotFailure describes a single shard failure inside a snapshot.
type SnapshotFailure struct {
	Index   string `json:"index"`
	ShardID int    `json:"shard_id"`
	Reason  string `json:"reason"`
	NodeID  string `json:"node_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// SnapshotInfo is the detail view of one snapshot.
type SnapshotInfo struct {
	Snapshot        string            `json:"snapshot"`
	State           SnapshotState     `json:"state"`
	Indices         []string          `json:"indices"`
	Failures        []SnapshotFailure `json:"failures"`
	Shards          ShardStats        `json:"shards"`
	StartTimeMillis int64             `json:"start_time_in_millis"`
	EndTimeMillis   int64             `json:"end_time_in_millis"`
}

type snapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// SnapshotEntry is one row of the repository snapshot catalog.
//
// The engine has reported epochs as end_epoch/start_epoch and as endEpoch/startEpoch
// across versions, as strings or numbers. Both spellings are accepted and the first
// non-zero value wins. Epochs are seconds.
type SnapshotEntry struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	EndEpoch   string `json:"end_epoch,omitempty"`
	StartEpoch string `json:"start_epoch,omitempty"`
}

func (e *SnapshotEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              string     `json:"id"`
		Status          string     `json:"status"`
		EndEpoch        epochField `json:"end_epoch"`
		EndEpochCamel   epochField `json:"endEpoch"`
		StartEpoch      epochField `json:"start_epoch"`
		StartEpochCamel epochField `json:"startEpoch"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Status = raw.Status
	e.EndEpoch = firstNonZero(raw.EndEpoch, raw.EndEpochCamel)
	e.StartEpoch = firstNonZero(raw.StartEpoch, raw.StartEpochCamel)
	return nil
}

type epochField string

func (f *epochField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = epochField(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = epochField(n.String())
	return nil
}

func firstNonZero(values ...epochField) string {
	for _, v := range values {
		if v != "" && v != "0" {
			return string(v)
		}
	}
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// MountRequest describes mounting one index of a snapshot as a searchable snapshot.
type MountRequest struct {
	// Index is the index name inside the snapshot.
	Index string
	// RenameTo is the name of the mounted index.
	RenameTo string
	// Replicas overrides index.number_of_replicas on the mount.
	Replicas int
}

// RolloverConditions are evaluated by the engine, never by the client.
type RolloverConditions struct {
	MaxSize string `json:"max_size,omitempty"`
	MaxAge  string `json:"max_age,omitempty"`
}

// RolloverResult is the engine's answer to a rollover request.
type RolloverResult struct {
	Acknowledged bool            `json:"acknowledged"`
	RolledOver   bool            `json:"rolled_over"`
	OldIndex     string          `json:"old_index"`
	NewIndex     string          `json:"new_index"`
	DryRun       bool            `json:"dry_run"`
	Conditions   map[string]bool `json:"conditions,omitempty"`
}
