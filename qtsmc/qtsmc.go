package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/vsenderov/qtbirds"
)

func main() {
	confArg := flag.String("c", "", "YAML run configuration (flags below override it)")
	treeArg := flag.String("t", "", "input tree (newick with branch lengths)")
	seqArg := flag.String("m", "", "molecular sequences (name<TAB>ACGT... per line)")
	charArg := flag.String("ch", "", "character states (name<TAB>state per line)")
	partArg := flag.Int("p", 0, "number of particles")
	kArg := flag.Int("K", 0, "number of character states")
	molArg := flag.Float64("mol", 0, "prior mean for the molecular substitution rate")
	chrArg := flag.Float64("chr", 0, "prior mean for the character transition rate")
	jmpArg := flag.Float64("jmp", 0, "prior mean for the joint jump rate")
	printFreqArg := flag.Int("pr", 0, "frequency with which to print filter progress (0 = silent)")
	seedArg := flag.Uint64("seed", 0, "random seed")
	flag.Parse()

	cfg := qtbirds.DefaultConfig()
	if *confArg != "" {
		var err error
		cfg, err = qtbirds.LoadConfig(*confArg)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *treeArg != "" {
		cfg.TreeFile = *treeArg
	}
	if *seqArg != "" {
		cfg.SeqFile = *seqArg
	}
	if *charArg != "" {
		cfg.CharFile = *charArg
	}
	if *partArg > 0 {
		cfg.Particles = *partArg
	}
	if *kArg > 0 {
		cfg.NCharStates = *kArg
	}
	if *molArg > 0 {
		cfg.MolRateMean = *molArg
	}
	if *chrArg > 0 {
		cfg.CharRateMean = *chrArg
	}
	if *jmpArg > 0 {
		cfg.JumpRateMean = *jmpArg
	}
	if *printFreqArg > 0 {
		cfg.PrintFreq = *printFreqArg
	}
	if *seedArg > 0 {
		cfg.Seed = *seedArg
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.TreeFile == "" || cfg.SeqFile == "" || cfg.CharFile == "" {
		log.Fatal("need a tree (-t), sequences (-m), and character states (-ch)")
	}

	lines, err := qtbirds.ReadLine(cfg.TreeFile)
	if err != nil {
		log.Fatal(err)
	}
	seqs, err := qtbirds.ReadSequences(cfg.SeqFile)
	if err != nil {
		log.Fatal(err)
	}
	chars, err := qtbirds.ReadCharStates(cfg.CharFile, cfg.NCharStates)
	if err != nil {
		log.Fatal(err)
	}
	tree, err := qtbirds.ReadTree(lines[0], seqs, chars)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("SUCCESSFULLY READ IN TREE WITH", len(seqs), "TIPS:", tree.Label())

	smc := qtbirds.InitSMC(tree, cfg.Particles, cfg.NCharStates,
		cfg.MolRateMean, cfg.CharRateMean, cfg.JumpRateMean, cfg.PrintFreq, cfg.Seed)
	start := time.Now()
	res, err := smc.Run()
	if err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)
	fmt.Println("COMPLETED", cfg.Particles, "PARTICLES IN", elapsed)
	fmt.Println("log marginal likelihood estimate:", res.LogZ)
}
