// Package record turns the examination portal's raw per-subject rows into a
// student's academic record.
//
// The pipeline is pure and synchronous:
//
//	batch := record.ParseRows(raw)            // validate, normalize paper codes
//	rec := record.Build(batch.Rows, record.BuildOptions{
//	    Catalog: catalog,                       // credit.Catalog from the credit sources
//	    Policy:  credit.DefaultPolicy(),
//	    Skipped: len(batch.Skipped),
//	})
//
// # Latest attempts
//
// A subject may appear several times when the student repeats it. Every
// statistic that sums per-subject values (latest-attempt marks, credits,
// grade distribution, cumulative breakdowns, manual credit overrides) runs on
// LatestAttempts, which keeps the attempt with the strictly later declared
// (year, month). Two attempts declared in the same month keep the row seen
// first, since the portal reports no finer date.
//
// Raw totals over every attempt are still reported, but as RawMarksTotal, a
// different type from LatestAttemptMarksTotal so the two cannot be mixed.
//
// # Credits and CGPA
//
// SGPA is taken verbatim from the portal. Credits are resolved locally via
// credit.Resolver; a subject with unknown credits contributes nothing and
// clears ProcessedRecord.HasCompleteCredits. ComputeCGPA then refuses to
// produce a multi-semester CGPA from partial credit data.
//
// Nothing in this package returns an error for ordinary data variance.
package record
