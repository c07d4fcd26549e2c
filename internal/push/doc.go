// Package push streams newly stored rows to an output sink.
//
// A Service polls the store on a fixed interval with its filter and cursor,
// forwards any rows past the cursor and advances the cursor to the last row
// delivered. Changing the filter resets the cursor.
package push
