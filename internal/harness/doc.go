// Package harness drives integration tests of the Account sync template.
//
// A Suite is the per-test context: SetUp stops the trigger schedulers and
// resolves the flows, the test body creates records, runs a trigger or
// push and waits for its sync job, and TearDown deletes every record the
// test created, including the copies sync made in the other system.
//
// # Scenario Format
//
// Scenarios describe the same protocol in YAML:
//
//	name: update_from_b
//	description: "A newer record in B overwrites its copy in A"
//	run_token: fixed          # optional, replaces ${run}
//	timeout: 10s              # optional, per sync job
//	setup:
//	  - create: A
//	    record: { Name: "Acme ${run}", Description: "Old description" }
//	flow:
//	  - trigger: triggerSyncFromBFlow
//	  - push:
//	      source: A
//	      fields: { Name: "Pushed ${run}" }
//	assertions:
//	  - type: synchronized
//	    where: { Name: "Acme ${run}" }
//	  - type: record_equals
//	    system: A
//	    where: { Name: "Acme ${run}" }
//	    expect: { Description: "Some nice description" }
//	  - type: record_absent
//	    system: B
//	    where: { Name: "Ghost ${run}" }
//
// A push step builds the sample "Account bbbb" notification with the
// given fields overridden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/update_from_b.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.RunIsolated(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
