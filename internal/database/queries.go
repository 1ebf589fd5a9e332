/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Account queries
	accountColumns = `id, external_id, handle, balance, baseline, archived_total, status, version, created_at, updated_at`

	queryInsertAccount = `
		INSERT INTO accounts (id, external_id, handle, balance, baseline, archived_total, status, version, created_at, updated_at)
		VALUES (?, ?, ?, '0', '0', '0', ?, 1, ?, ?)
		RETURNING ` + accountColumns

	queryGetAccountById = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ?`

	queryGetAccountByExternalId = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE external_id = ?`

	queryGetAccountByHandle = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE handle != '' AND LOWER(handle) = LOWER(?)
		ORDER BY created_at
		LIMIT 1`

	queryListAccounts = `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at`

	queryUpdateAccountStatus = `
		UPDATE accounts
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET balance = ?, baseline = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryGetArchivedTotal = `
		SELECT archived_total FROM accounts WHERE id = ?`

	queryUpdateArchivedTotal = `
		UPDATE accounts
		SET archived_total = ?, updated_at = ?
		WHERE id = ?`

	// Sender link queries
	linkColumns = `id, account_id, sender_address, created_at, last_used_at`

	queryInsertSenderLink = `
		INSERT INTO sender_links (id, account_id, sender_address, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + linkColumns

	queryFindLinkBySender = `
		SELECT ` + linkColumns + `
		FROM sender_links
		WHERE sender_address = ?`

	queryGetAccountLinks = `
		SELECT ` + linkColumns + `
		FROM sender_links
		WHERE account_id = ?
		ORDER BY last_used_at DESC, created_at DESC`

	queryCountLinks = `
		SELECT COUNT(*) FROM sender_links`

	queryTouchSenderLink = `
		UPDATE sender_links
		SET last_used_at = ?
		WHERE sender_address = ? AND account_id = ?`

	// Ledger entry queries
	entryColumns = `id, account_id, kind, amount, balance_before, balance_after,
		external_ref, sender_address, reference, status, created_at`

	queryGetEntryByRef = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE external_ref = ?
		LIMIT 1`

	queryCheckDuplicateEntry = `
		SELECT id FROM ledger_entries WHERE external_ref = ? LIMIT 1`

	queryInsertEntry = `
		INSERT INTO ledger_entries (
			id, account_id, kind, amount, balance_before, balance_after,
			external_ref, sender_address, reference, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + entryColumns

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, entry_id, account_type, account_ref, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetEntryHistory = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryCountEntries = `
		SELECT COUNT(*) FROM ledger_entries WHERE account_id = ?`

	queryGetEntryAmounts = `
		SELECT amount FROM ledger_entries WHERE account_id = ? AND status = 'completed'`

	// Retention queries
	queryGetExpiredEntries = `
		SELECT account_id, amount
		FROM ledger_entries
		WHERE created_at < ?`

	queryDeleteExpiredJournal = `
		DELETE FROM journal_entries
		WHERE entry_id IN (SELECT id FROM ledger_entries WHERE created_at < ?)`

	queryDeleteExpiredEntries = `
		DELETE FROM ledger_entries
		WHERE created_at < ?`
)
