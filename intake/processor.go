// Package intake orchestrates one feed file end to end: receipt, parse,
// map, reconcile, transmit, notify.
package intake

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seamline/ingest/config"
	"github.com/seamline/ingest/db"
	"github.com/seamline/ingest/docstore"
	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/etl"
	"github.com/seamline/ingest/logger"
	"github.com/seamline/ingest/notify"
	"github.com/seamline/ingest/translate"
	"github.com/seamline/ingest/transmit"
)

// Processor runs feed files through the full pipeline. Items are
// processed strictly sequentially; a malformed item is recorded on the
// run summary and the batch continues.
type Processor struct {
	cfg      *config.Config
	lineage  *translate.Store
	items    *docstore.Items
	profiles *etl.Profiles
	queue    *notify.Queue
	logger   *zap.SugaredLogger
}

// NewProcessor wires the pipeline over one database handle.
func NewProcessor(db *sql.DB, cfg *config.Config) *Processor {
	checker := etl.NewHTTPChecker(
		time.Duration(cfg.Validation.HTTPTimeoutSeconds)*time.Second,
		cfg.Validation.HTTPRequestsPerMinute,
	)
	validator := etl.NewValidator(checker)

	return &Processor{
		cfg:     cfg,
		lineage: translate.NewStore(db),
		items: docstore.NewItems(db, cfg.GetMaxSyncRetries(),
			time.Duration(cfg.Import.RetryBackoffMs)*time.Millisecond),
		profiles: etl.NewProfiles(docstore.NewProfiles(db), validator, docstore.NewGeo(db)),
		queue:    notify.NewQueue(db),
		logger:   logger.ComponentLogger("intake"),
	}
}

// ProcessFile runs one delivery of a registered feed file. The returned
// summary is populated even when individual items fail; only setup
// failures (unknown file, incomplete packet, unreadable profile) abort
// the run.
func (p *Processor) ProcessFile(ctx context.Context, sourceTypeCode, fileName string) (*transmit.Response, error) {
	source, file, err := p.lineage.FindSourceFile(ctx, sourceTypeCode, fileName)
	if err != nil {
		return nil, err
	}

	fileConfig, err := p.lineage.FileConfig(ctx, source.ID, file.ID)
	if err != nil {
		return nil, err
	}

	var profile *etl.Profile
	if key := fileConfig["profile"]; key != "" {
		profile, err = p.profiles.ByKey(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "loading profile %q", key)
		}
	}

	parser, err := translate.OpenPacket(filepath.Join(p.cfg.Import.SharePath, fileName))
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	batch := uuid.NewString()
	receipt, err := p.lineage.OpenReceipt(ctx, file.ID, batch, time.Now())
	if err != nil {
		return nil, err
	}

	log := p.logger.With(
		logger.FieldBatch, batch,
		logger.FieldSourceType, sourceTypeCode,
		logger.FieldFile, fileName,
	)
	log.Infow("Processing feed file")

	previousHashes := map[string]string{}
	previous, err := p.lineage.PreviousReceipt(ctx, file.ID, batch)
	switch {
	case err == nil:
		previousHashes, err = p.lineage.ReceiptHashes(ctx, previous.ID)
		if err != nil {
			return nil, err
		}
	case !errors.IsNotFoundError(err):
		return nil, err
	}

	tr := transmit.NewTransmitter(p.items, p.lineage, source, file, receipt,
		p.cfg.Import.Verbose, p.cfg.Import.ArchiveOnDelete)
	response := tr.Response()

	for {
		packet, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			response.LogError("parse", parser.Count()+1, err)
			continue
		}

		if err := p.processItem(ctx, tr, profile, packet, previousHashes, receipt, source, file); err != nil {
			// a closed database means shutdown, not a bad item
			if db.IsDatabaseClosed(err) {
				return response, err
			}
			response.LogError("item", packet.Position, err)
			log.Warnw("Item failed",
				"position", packet.Position,
				"error", err,
			)
		}
	}

	if err := tr.Finalize(ctx); err != nil {
		return response, err
	}

	if p.cfg.Notify.Enabled {
		workers, err := p.lineage.NotifyRecipients(ctx, source.ID)
		if err != nil {
			log.Errorw("Failed to load notify recipients", "error", err)
		} else {
			response.WorkersNotified = p.queue.Enqueue(ctx, workers, batch, response)
		}
	}

	log.Infow("Feed file processed",
		"total", response.Totals.Total,
		"create", response.Totals.Create,
		"update", response.Totals.Update,
		"delete", response.Totals.Delete,
		"noAction", response.Totals.NoAction,
		"errors", response.Totals.Errors,
	)
	return response, nil
}

// processItem maps, reconciles, logs, and transmits a single packet item.
func (p *Processor) processItem(ctx context.Context, tr *transmit.Transmitter,
	profile *etl.Profile, packet *translate.PacketItem,
	previousHashes map[string]string, receipt *translate.Receipt,
	source *translate.Source, file *translate.SourceFile) error {

	var result *etl.Result
	if profile != nil {
		doc := etl.NewDocument(packet.Data)
		mapped, err := profile.Run(doc, packet.Source)
		if err != nil {
			return err
		}
		result = mapped
	}

	item, err := translate.NewItem(packet.Data, result)
	if err != nil {
		return err
	}

	previousHash, found := previousHashes[item.UniqueID()]
	item.Reconcile(previousHash, found)

	if err := p.lineage.LogItem(ctx, item, receipt, source.CodePrefix()); err != nil {
		return err
	}
	if err := tr.Send(ctx, item); err != nil {
		// leave a replayable trace of the logged-but-unsynced item
		if encoded, snapErr := item.Snapshot(translate.SnapshotSource{
			Type:  source.TypeCode,
			File:  file.Name,
			Batch: receipt.Batch,
		}).Encode(); snapErr == nil {
			p.logger.Debugw("Snapshot of failed item",
				logger.FieldUniqueID, item.UniqueID(),
				logger.FieldBatch, receipt.Batch,
				"snapshot", encoded,
			)
		}
		return err
	}
	return nil
}
