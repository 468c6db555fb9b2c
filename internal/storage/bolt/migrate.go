package bolt

import (
	"encoding/json"
	"log/slog"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/podcatch/internal/domain"
)

// schemaVersion is the schema the code expects. The ladder below runs only
// when the stored version is older.
const schemaVersion = 2

var versionKey = []byte("schemaVersion")

// migrationStep upgrades the schema by one version. Steps are strictly
// additive and idempotent: they check for existence before creating, so a
// partially applied ladder (crash mid-upgrade) converges on re-run.
// Removing a bucket is always a deliberate manual operation, never part of
// a step: a destructive migration on a user's only copy of their offline
// media is not an acceptable failure mode.
type migrationStep struct {
	version int
	name    string
	apply   func(tx *bolt.Tx) error
}

var migrations = []migrationStep{
	{
		version: 1,
		name:    "base stores",
		apply: func(tx *bolt.Tx) error {
			for _, bucket := range [][]byte{bucketMeta, bucketSources, bucketEpisodes, bucketFiles} {
				if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		version: 2,
		name:    "episode indexes, settings, file metadata",
		apply: func(tx *bolt.Tx) error {
			for _, bucket := range [][]byte{bucketFilesMeta, bucketSettings, bucketEpisodesBySource, bucketEpisodesByPlayed} {
				if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
					return err
				}
			}
			return backfillEpisodeIndexes(tx)
		},
	},
}

// migrate brings db up to schemaVersion inside a single transaction, so a
// crash mid-upgrade leaves the previous version intact.
func migrate(db *bolt.DB, logger *slog.Logger) error {
	return db.Update(func(tx *bolt.Tx) error {
		stored := storedVersion(tx)
		if stored >= schemaVersion {
			return nil
		}

		for _, step := range migrations {
			if step.version <= stored {
				continue
			}
			logger.Info("upgrading storage schema",
				"from", stored, "to", step.version, "step", step.name)
			if err := step.apply(tx); err != nil {
				return err
			}
			stored = step.version
		}

		meta := tx.Bucket(bucketMeta)
		return meta.Put(versionKey, []byte(strconv.Itoa(stored)))
	})
}

func storedVersion(tx *bolt.Tx) int {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return 0
	}
	data := meta.Get(versionKey)
	if data == nil {
		return 0
	}
	version, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return version
}

// backfillEpisodeIndexes derives index entries for episodes written before
// the index buckets existed. Put is a no-op for entries already present.
func backfillEpisodeIndexes(tx *bolt.Tx) error {
	bySource := tx.Bucket(bucketEpisodesBySource)
	byPlayed := tx.Bucket(bucketEpisodesByPlayed)

	return tx.Bucket(bucketEpisodes).ForEach(func(k, v []byte) error {
		var episode domain.Episode
		if err := json.Unmarshal(v, &episode); err != nil {
			return err
		}
		if err := bySource.Put(indexKey(episode.Source, episode.URI), nil); err != nil {
			return err
		}
		return byPlayed.Put(indexKey(playedValue(episode.Playback.Played), episode.URI), nil)
	})
}
