// Package output renders relaygate-cli results as a table, JSON or YAML.
//
// Commands hand a value to a Printer. Table output uses the json tag of each
// exported field as the column name; fields tagged `table:"wide"` only show
// with --wide and `table:"-"` never shows. A value implementing Tabular
// controls its own table.
package output
