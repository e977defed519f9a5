// Package plan loads YAML test plans into unit trees.
//
// A plan file describes a tree of units:
//
//	name: checkout
//	variables:
//	  db: sqlite://./shop.db
//	setup:
//	  - sql: CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, total REAL)
//	    database: "{{db}}"
//	units:
//	  - name: create order
//	    steps:
//	      - shell: ./create-order.sh
//	        capture: order
//	      - assert:
//	          - order contains created
//	  - name: totals
//	    dependsOn: [create order]
//	    data:
//	      rows:
//	        - {name: small, total: 5}
//	        - {name: large, total: 500}
//	    steps:
//	      - assert:
//	          - "{{total}} > 0"
//
// Each step holds exactly one of shell, set, assert, sql or waitFor.
package plan
