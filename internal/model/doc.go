// Package model defines the entities written by the ingestion pipeline.
//
// All types mirror the QuestDB schema in internal/questdb/schema.sql.
//
// Conventions:
//   - Timestamps: time.Time in UTC; "date" means a calendar date normalized
//     to 00:00:00 UTC
//   - Prices and sizes: float64 as delivered by the vendors
//   - IDs: string tickers; option tickers carry the "O:" prefix
//
// Vendor DTOs are transient and live in internal/polygon and internal/alpaca;
// they exist only between fetch and normalization into these types.
package model
