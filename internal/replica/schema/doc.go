// Package schema defines the replica document: the dataset of apiaries, calendar
// events and seasonal notes that is copied between the local and remote replicas.
//
// # Overview
//
// A Dataset is document-shaped. Apiaries own hives, hives own inspections,
// movements and production records, seasonal notes own bloom records. Every entity
// carries an opaque, client-generated id that is never reused.
//
//	{
//	  "apiaries": [
//	    {
//	      "id": "6f0c...",
//	      "name": "Orchard",
//	      "hives": [
//	        {"id": "b12e...", "status": "Healthy", "inspections": [...]}
//	      ]
//	    }
//	  ],
//	  "calendarEvents": [...],
//	  "seasonalNotes": [...]
//	}
//
// Field names are camelCase so the document stays interchangeable with the
// browser clients that read and write the same remote row.
//
// # Usage Examples
//
// Creating an apiary with one hive:
//
//	apiary := &schema.Apiary{ID: schema.NewID(), Name: "Orchard"}
//	apiary.Hives = append(apiary.Hives, schema.Hive{ID: schema.NewID(), Status: "Healthy"})
//	ds := &schema.Dataset{Apiaries: []schema.Apiary{*apiary}}
//
// Reading a snapshot leniently (never fails on partial documents):
//
//	ds, err := schema.DecodeDataset(data)
//	if err != nil {
//	    // malformed: callers treat this as an empty dataset
//	}
//
// # Design Principles
//
//   - Typed structs, one per entity kind, so the merge policy is auditable
//   - Free-form fields live in string maps and are merged key by key
//   - Clone performs a deep copy; replicas never share slices or maps
package schema
