// Package provenance orchestrates the end-to-end upload and download flows:
// stamp resolution, envelope wrapping, storage, integrity verification and
// output artifact writing. Every other package does one thing; this one
// strings them together in the order the flows require.
package provenance

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/envelope"
	"github.com/datafund/swarmprov/notary"
	"github.com/datafund/swarmprov/stamp"
)

var log = logging.Logger("provenance")

// DefaultStandard is recorded in the envelope when the caller does not name
// a provenance standard.
const DefaultStandard = "fdp-provenance-v1"

// Service drives uploads and downloads against one backend.
type Service struct {
	backend Backend
	stamps  *stamp.Manager
}

func NewService(backend Backend, stamps *stamp.Manager) *Service {
	return &Service{backend: backend, stamps: stamps}
}

// ValidReference reports whether ref looks like a swarm reference: exactly
// 64 hex characters.
func ValidReference(ref string) bool {
	if len(ref) != 64 {
		return false
	}
	_, err := hex.DecodeString(ref)
	return err == nil
}

// StampSpec says where the upload's stamp comes from. Exactly one path is
// taken: an explicit batch ID is validated as-is, otherwise the pool is
// tried when UsePool is set, otherwise (or on an empty pool with
// FallbackPurchase) a fresh batch is purchased and awaited.
type StampSpec struct {
	ID               string
	UsePool          bool
	Size             stamp.Size
	Purchase         stamp.PurchaseParams
	FallbackPurchase bool
}

// UploadParams configures one upload.
type UploadParams struct {
	Stamp       StampSpec
	ContentType string // recorded for serving; defaults to application/json
	Standard    string // provenance standard label; defaults to DefaultStandard
	Encryption  string // "none" unless the caller encrypted beforehand
	Notarize    bool
}

// UploadReport is the outcome of a successful upload.
type UploadReport struct {
	Reference      string
	Lease          *stamp.Lease
	Envelope       envelope.Envelope
	SignedDocument json.RawMessage
	Warnings       []string
}

// resolveStamp produces a usable lease, collecting non-blocking health
// warnings along the way.
func (s *Service) resolveStamp(ctx context.Context, spec StampSpec, warnings *[]string) (*stamp.Lease, error) {
	if spec.ID != "" {
		lease, err := s.stamps.Validate(ctx, spec.ID)
		if err != nil {
			return nil, err
		}
		health, err := s.stamps.CheckHealth(ctx, spec.ID)
		if err == nil {
			for _, w := range health.Warnings {
				*warnings = append(*warnings, w.Message)
			}
		}
		return lease, nil
	}

	var poolErr error
	if spec.UsePool {
		lease, err := s.stamps.AcquireFromPool(ctx, spec.Size)
		if err == nil {
			if lease.Substituted {
				*warnings = append(*warnings, "pool substituted a larger stamp size than requested")
			}
			return lease, nil
		}
		if !spec.FallbackPurchase || (!errors.Is(err, stamp.ErrPoolEmpty) && !errors.Is(err, stamp.ErrPoolDisabled)) {
			return nil, err
		}
		log.Warnw("pool cannot serve, purchasing instead", "err", err)
		poolErr = err
	}

	params := spec.Purchase
	if params.Size == "" && params.Depth == 0 {
		params.Size = spec.Size
	}
	lease, err := s.stamps.Purchase(ctx, params)
	if err != nil {
		if poolErr != nil {
			return nil, multierror.Append(poolErr, err)
		}
		return nil, err
	}
	return s.stamps.WaitUntilUsable(ctx, lease.ID)
}

// Upload wraps raw in an integrity envelope and stores it under a usable
// stamp. The returned reference addresses the envelope document, not the
// raw bytes.
func (s *Service) Upload(ctx context.Context, raw []byte, params UploadParams) (*UploadReport, error) {
	if len(raw) == 0 {
		return nil, xerrors.Errorf("refusing to upload empty data")
	}

	report := &UploadReport{}
	lease, err := s.resolveStamp(ctx, params.Stamp, &report.Warnings)
	if err != nil {
		return nil, err
	}
	report.Lease = lease

	standard := params.Standard
	if standard == "" {
		standard = DefaultStandard
	}
	encryption := params.Encryption
	if encryption == "" {
		encryption = "none"
	}
	env := envelope.Wrap(raw, lease.ID, standard, encryption)
	doc, err := envelope.Marshal(env)
	if err != nil {
		return nil, err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	outcome, err := s.backend.Upload(ctx, doc, lease.ID, contentType, params.Notarize)
	if err != nil {
		return nil, err
	}
	if !ValidReference(outcome.Reference) {
		return nil, xerrors.Errorf("backend returned malformed reference %q", outcome.Reference)
	}

	report.Reference = outcome.Reference
	report.Envelope = env
	report.SignedDocument = outcome.SignedDocument
	log.Infow("upload complete", "reference", outcome.Reference, "batch", lease.ID, "bytes", len(raw))
	return report, nil
}

// DownloadParams configures one download.
type DownloadParams struct {
	OutDir        string // artifact directory; "-" skips writing files
	VerifySigner  string // expected notary address; empty skips pinning
	RequireNotary bool   // verify the notary signature, failing soft
}

// DownloadReport is the outcome of a download. Verified refers to content
// integrity; a failed notary check or an unverified envelope is reported
// here, never silently dropped.
type DownloadReport struct {
	Reference string
	Raw       []byte
	Envelope  envelope.Envelope
	Verified  bool
	DataPath  string
	MetaPath  string
	Notary    *notary.Result
}

// Download fetches a reference, verifies envelope integrity and writes the
// output artifacts: <ref>.meta.json with the envelope document and
// <ref>.data with the raw bytes. Data that fails verification is still
// written, under an UNVERIFIED marker name.
func (s *Service) Download(ctx context.Context, reference string, params DownloadParams) (*DownloadReport, error) {
	reference = strings.ToLower(reference)
	if !ValidReference(reference) {
		return nil, xerrors.Errorf("malformed reference %q: want 64 hex characters", reference)
	}

	doc, err := s.backend.Download(ctx, reference)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Parse(doc)
	if err != nil {
		return nil, xerrors.Errorf("reference %s does not hold an envelope document: %w", reference, err)
	}
	raw, verified, err := envelope.Unwrap(env)
	if err != nil {
		return nil, err
	}

	report := &DownloadReport{
		Reference: reference,
		Raw:       raw,
		Envelope:  env,
		Verified:  verified,
	}
	if !verified {
		log.Errorw("content integrity check failed", "reference", reference)
	}

	if params.RequireNotary || params.VerifySigner != "" {
		res, err := notary.Verify(env, params.VerifySigner)
		if err != nil {
			// Verification trouble is reported alongside the data, not
			// allowed to block delivery of bytes the caller already has.
			res = &notary.Result{Reason: err.Error()}
		}
		report.Notary = res
	}

	if params.OutDir != "-" {
		if err := s.writeArtifacts(report, params.OutDir); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (s *Service) writeArtifacts(report *DownloadReport, outDir string) error {
	dir, err := homedir.Expand(outDir)
	if err != nil {
		return xerrors.Errorf("resolving output directory: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("creating output directory: %w", err)
	}

	meta, err := envelope.MarshalIndent(report.Envelope)
	if err != nil {
		return err
	}
	metaPath := filepath.Join(dir, report.Reference+".meta.json")
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return xerrors.Errorf("writing metadata: %w", err)
	}

	dataName := report.Reference + ".data"
	if !report.Verified {
		dataName = report.Reference + ".UNVERIFIED.data"
	}
	dataPath := filepath.Join(dir, dataName)
	if err := os.WriteFile(dataPath, report.Raw, 0o644); err != nil {
		return xerrors.Errorf("writing data: %w", err)
	}

	report.MetaPath = metaPath
	report.DataPath = dataPath
	log.Infow("artifacts written", "meta", metaPath, "data", dataPath, "verified", report.Verified)
	return nil
}
