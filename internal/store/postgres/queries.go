package postgres

const queryInsertExecution = `
INSERT INTO job_executions (
    id, job_id, execution_id, job_name, job_type, status,
    started_at, completed_at, execution_time_ms, attempt,
    error_message, error_stack, result,
    cpu_percent, memory_mb, records_processed, created_at
)
VALUES (
    :id, :job_id, :execution_id, :job_name, :job_type, :status,
    :started_at, :completed_at, :execution_time_ms, :attempt,
    :error_message, :error_stack, :result,
    :cpu_percent, :memory_mb, :records_processed, :created_at
)
`

const queryListExecutionsSince = `
SELECT
    id, job_id, execution_id, job_name, job_type, status,
    started_at, completed_at, execution_time_ms, attempt,
    error_message, error_stack, result,
    cpu_percent, memory_mb, records_processed, created_at
FROM job_executions
WHERE job_id = $1 AND started_at >= $2
ORDER BY started_at DESC
`

const queryListAllExecutionsSince = `
SELECT
    id, job_id, execution_id, job_name, job_type, status,
    started_at, completed_at, execution_time_ms, attempt,
    error_message, error_stack, result,
    cpu_percent, memory_mb, records_processed, created_at
FROM job_executions
WHERE started_at >= $1
ORDER BY started_at DESC
`

const queryRecentExecutions = `
SELECT
    id, job_id, execution_id, job_name, job_type, status,
    started_at, completed_at, execution_time_ms, attempt,
    error_message, error_stack, result,
    cpu_percent, memory_mb, records_processed, created_at
FROM job_executions
WHERE job_id = $1
ORDER BY started_at DESC
LIMIT $2
`

const queryDeleteCompletedBefore = `
DELETE FROM job_executions
WHERE status = 'completed' AND started_at < $1
`

const queryInsertAlert = `
INSERT INTO job_alerts (
    id, job_id, alert_type, threshold, channels, recipients,
    webhook_url, enabled, last_triggered_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryAlertsForJob = `
SELECT
    id, job_id, alert_type, threshold, channels, recipients,
    webhook_url, enabled, last_triggered_at, created_at
FROM job_alerts
WHERE job_id = $1
ORDER BY created_at
`

const queryMarkAlertTriggered = `
UPDATE job_alerts
SET last_triggered_at = $2
WHERE id = $1
`

const queryRollup = `
SELECT bookings, gross_revenue, guests, tables_occupied, occupancy_rate
FROM report_rollups
WHERE report_type = $1 AND period_start = $2
`

const queryDailyAggregates = `
SELECT date, bookings, gross_revenue, guests, tables_occupied
FROM booking_daily_aggregates
WHERE date >= $1 AND date < $2
ORDER BY date
`

const queryBookings = `
SELECT
    id, status, party_size, total_amount, deposit_amount, refund_amount,
    table_id, event_name, event_date, package_name,
    customer_id, customer_created_at, created_at
FROM bookings
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at
`

const queryInsertGeneration = `
INSERT INTO report_generations (
    id, template_id, report_type, generated_at, period_start, period_end,
    output_format, records_processed, sections_generated,
    summary, key_metrics, success
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// queryAggregateDay folds one day of raw bookings into its aggregate row.
// Re-running the day replaces the previous row. Only confirmed and completed
// bookings count, the same set the live fallback tier aggregates over.
const queryAggregateDay = `
INSERT INTO booking_daily_aggregates (date, bookings, gross_revenue, guests, tables_occupied)
SELECT
    $1::date,
    COUNT(*),
    COALESCE(SUM(total_amount), 0),
    COALESCE(SUM(party_size), 0),
    COUNT(DISTINCT table_id)
FROM bookings
WHERE created_at >= $2 AND created_at < $3
  AND status IN ('confirmed', 'completed')
ON CONFLICT (date) DO UPDATE SET
    bookings = EXCLUDED.bookings,
    gross_revenue = EXCLUDED.gross_revenue,
    guests = EXCLUDED.guests,
    tables_occupied = EXCLUDED.tables_occupied
RETURNING bookings
`
