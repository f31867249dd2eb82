// Dataset commands: get, set, delete, list, count, version.
package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/pkg/types"
)

const version = "v0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("strata " + version)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <model> <id>",
	Short: "Get a record by id",
	Long: `Get retrieves one record of the named model by its integer id and
prints it as JSON.

Example:
  strata get note 7`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	t, err := typeFor(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], types.ErrInvalidID)
	}
	rec, err := t.Find(id)
	if err != nil {
		return fmt.Errorf("find record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("record %d not found in %q", id, args[0])
	}
	return printJSON(rec.Serialize())
}

var setCmd = &cobra.Command{
	Use:   "set <model> <json>",
	Short: "Create or update a record",
	Long: `Set creates a record of the named model from a JSON object, or
updates the existing record when the object carries an id.

Example:
  strata set note '{"title": "groceries", "body": "eggs, flour"}'
  strata set note '{"id": 7, "body": "eggs only"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	t, err := typeFor(args[0])
	if err != nil {
		return err
	}
	var attrs types.Row
	if err := json.Unmarshal([]byte(args[1]), &attrs); err != nil {
		return fmt.Errorf("parse record payload: %w", err)
	}

	if id := attrs.ID(); id != 0 {
		rec, err := t.Find(id)
		if err != nil {
			return fmt.Errorf("find record: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("record %d not found in %q", id, args[0])
		}
		if err := rec.Update(attrs); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		return printJSON(rec.Serialize())
	}

	rec, err := t.Create(attrs)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return printJSON(rec.Serialize())
}

var deleteCmd = &cobra.Command{
	Use:   "delete <model> <id>",
	Short: "Delete a record by id",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	t, err := typeFor(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], types.ErrInvalidID)
	}
	rec, err := t.Find(id)
	if err != nil {
		return fmt.Errorf("find record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("record %d not found in %q", id, args[0])
	}
	if err := rec.Delete(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	fmt.Printf("Deleted %s %d\n", args[0], id)
	return nil
}

var listCmd = &cobra.Command{
	Use:   "list <model>",
	Short: "List every record of a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	t, err := typeFor(args[0])
	if err != nil {
		return err
	}
	records, err := t.All()
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	rows := make([]types.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Serialize()
	}
	return printJSON(rows)
}

var countCmd = &cobra.Command{
	Use:   "count <model>",
	Short: "Count the records of a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

func runCount(cmd *cobra.Command, args []string) error {
	t, err := typeFor(args[0])
	if err != nil {
		return err
	}
	count, err := t.Count(nil)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	fmt.Println(count)
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
